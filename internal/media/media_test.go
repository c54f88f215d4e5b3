package media

import "testing"

func TestFrameSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format PixelFormat
		w, h   int
		want   int
	}{
		{PixelFormatI420, 640, 480, 640*480 + 2*320*240},
		{PixelFormatNV12, 1920, 1080, 1920 * 1080 * 3 / 2},
		{PixelFormatNV21, 3, 3, 9 + 2*2*2},
		{PixelFormatYV12, 2, 2, 6},
		{PixelFormatYUYV, 4, 2, 16},
		{PixelFormatRGBA, 4, 2, 32},
		{PixelFormatUnknown, 4, 2, 0},
		{PixelFormatI420, 0, 2, 0},
	}
	for _, tt := range tests {
		if got := FrameSize(tt.format, tt.w, tt.h); got != tt.want {
			t.Errorf("FrameSize(%v, %d, %d) = %d, want %d", tt.format, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestParsePixelFormat(t *testing.T) {
	t.Parallel()

	for f, name := range pixelFormatNames {
		got, err := ParsePixelFormat(name)
		if err != nil {
			t.Fatalf("ParsePixelFormat(%q): %v", name, err)
		}
		if got != f {
			t.Errorf("ParsePixelFormat(%q) = %v, want %v", name, got, f)
		}
	}
	if _, err := ParsePixelFormat("bgr24"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseCodec(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"h264", "avc"} {
		if c, err := ParseCodec(s); err != nil || c != CodecAVC {
			t.Errorf("ParseCodec(%q) = %v, %v", s, c, err)
		}
	}
	if c, _ := ParseCodec("hevc"); c.MIME() != "video/hevc" || c.StreamType() != 0x24 {
		t.Errorf("hevc mime/stream type = %s/%#x", c.MIME(), c.StreamType())
	}
	if _, err := ParseCodec("vp8"); err == nil {
		t.Error("expected error for vp8")
	}
}

func TestRescale(t *testing.T) {
	t.Parallel()

	frame := Rational{1, 30}
	tests := []struct {
		name     string
		v        int64
		from, to Rational
		want     int64
	}{
		{"us to frame", 33465, Microseconds, frame, 1},
		{"us to frame rounds", 66798, Microseconds, frame, 2},
		{"frame to 90k", 2, frame, MPEGClock, 6000},
		{"half rounds up", 1, Rational{1, 2}, Rational{1, 1}, 1},
		{"negative half rounds away", -1, Rational{1, 2}, Rational{1, 1}, -1},
		{"below half rounds down", 1, Rational{1, 4}, Rational{1, 1}, 0},
		{"zero", 0, Microseconds, MPEGClock, 0},
	}
	for _, tt := range tests {
		if got := Rescale(tt.v, tt.from, tt.to); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRawFramePayload(t *testing.T) {
	t.Parallel()

	f := &RawFrame{Data: make([]byte, 10), Length: 4}
	if got := len(f.Payload()); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	f.Length = 20
	if got := len(f.Payload()); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
}
