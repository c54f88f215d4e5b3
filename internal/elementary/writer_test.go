package elementary

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

var (
	sps = []byte{0x67, 0x64, 0x00, 0x1f, 0xac}
	pps = []byte{0x68, 0xee, 0x3c, 0x80}
	idr = []byte{0x65, 0x88, 0x84}
	p   = []byte{0x41, 0x9a, 0x02}
)

func TestWriterPrependsConfigOnce(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	w := NewWriter(&out)
	h, err := w.CreateStream(media.CodecAVC)
	if err != nil {
		t.Fatal(err)
	}
	if h.TimeBase != media.Microseconds {
		t.Errorf("time base = %s, want %s", h.TimeBase, media.Microseconds)
	}
	w.SetDescriptor(media.StreamDescriptor{Extradata: h26x.AppendAnnexB(nil, sps, pps)})

	pkts := []*media.EncodedPacket{
		{Data: h26x.AppendAnnexB(nil, idr), Keyframe: true},
		{Data: h26x.AppendAnnexB(nil, p)},
		{Data: h26x.AppendAnnexB(nil, idr), Keyframe: true},
	}
	for _, pkt := range pkts {
		if err := w.Write(pkt); err != nil {
			t.Fatal(err)
		}
	}
	want := h26x.AppendAnnexB(nil, sps, pps, idr, p, idr)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("stream = %x, want %x", out.Bytes(), want)
	}
	if n, b := w.Counts(); n != 3 || b != int64(len(want)) {
		t.Errorf("counts = %d packets %d bytes", n, b)
	}
}

func TestWriterKeepsInBandConfig(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	w := NewWriter(&out)
	if _, err := w.CreateStream(media.CodecAVC); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(&media.EncodedPacket{Data: h26x.AppendAnnexB(nil, sps, pps), CodecConfig: true}); err != nil {
		t.Fatal(err)
	}
	key := h26x.AppendAnnexB(nil, sps, pps, idr)
	if err := w.Write(&media.EncodedPacket{Data: key, Keyframe: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), key) {
		t.Errorf("stream = %x, want %x", out.Bytes(), key)
	}
}

func TestWriterErrors(t *testing.T) {
	t.Parallel()
	w := NewWriter(&bytes.Buffer{})
	if err := w.Write(&media.EncodedPacket{}); !errors.Is(err, ErrNoStream) {
		t.Errorf("got %v, want ErrNoStream", err)
	}
	if _, err := w.CreateStream(0); err == nil {
		t.Error("unknown codec accepted")
	}
	if _, err := w.CreateStream(media.CodecHEVC); err != nil {
		t.Fatal(err)
	}
	if _, err := w.CreateStream(media.CodecHEVC); err == nil {
		t.Error("second stream accepted")
	}
}
