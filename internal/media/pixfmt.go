package media

import "fmt"

// PixelFormat identifies the memory layout of a raw video frame.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	// I420 is planar YUV 4:2:0: a full Y plane followed by U then V at
	// quarter resolution.
	PixelFormatI420
	// NV12 is semi-planar YUV 4:2:0 with interleaved UV samples.
	PixelFormatNV12
	// NV21 is semi-planar YUV 4:2:0 with interleaved VU samples.
	PixelFormatNV21
	// YV12 is planar YUV 4:2:0 with the V plane before the U plane.
	PixelFormatYV12
	// YUYV is packed YUV 4:2:2 (Y0 U Y1 V per two pixels).
	PixelFormatYUYV
	// RGBA is packed 8-bit RGBA.
	PixelFormatRGBA
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatI420: "i420",
	PixelFormatNV12: "nv12",
	PixelFormatNV21: "nv21",
	PixelFormatYV12: "yv12",
	PixelFormatYUYV: "yuyv",
	PixelFormatRGBA: "rgba",
}

func (f PixelFormat) String() string {
	if s, ok := pixelFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(f))
}

// ParsePixelFormat maps a lowercase name such as "nv12" to its format.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for f, name := range pixelFormatNames {
		if name == s {
			return f, nil
		}
	}
	return PixelFormatUnknown, fmt.Errorf("media: unknown pixel format %q", s)
}

// IsYUV420 reports whether the format is one of the 4:2:0 layouts an
// encoder accepts directly.
func (f PixelFormat) IsYUV420() bool {
	switch f {
	case PixelFormatI420, PixelFormatNV12, PixelFormatNV21, PixelFormatYV12:
		return true
	}
	return false
}

// ChromaSize returns the dimensions of one chroma plane of a 4:2:0 frame.
// Odd luma dimensions round up.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// FrameSize returns the number of bytes a frame of the given layout and
// dimensions occupies, or 0 for an unknown format or non-positive size.
func FrameSize(f PixelFormat, width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch f {
	case PixelFormatI420, PixelFormatNV12, PixelFormatNV21, PixelFormatYV12:
		cw, ch := ChromaSize(width, height)
		return width*height + 2*cw*ch
	case PixelFormatYUYV:
		return ((width + 1) / 2) * 4 * height
	case PixelFormatRGBA:
		return width * height * 4
	}
	return 0
}
