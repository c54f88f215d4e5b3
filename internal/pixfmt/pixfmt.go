// Package pixfmt converts raw frames between the YUV 4:2:0 layouts hardware
// encoders accept. Planar I420 and the two semi-planar layouts (NV12, NV21)
// convert directly into one another. Any other supported layout is first
// normalized to I420.
//
// All functions are stateless and safe for concurrent use.
package pixfmt

import (
	"errors"
	"fmt"

	"github.com/zsiec/hwenc/internal/media"
)

var (
	ErrUnsupportedFormat = errors.New("pixfmt: unsupported pixel format")
	ErrShortBuffer       = errors.New("pixfmt: source buffer shorter than frame")
	ErrBadDimensions     = errors.New("pixfmt: invalid frame dimensions")
)

// Convert rewrites src, a frame in layout from, into layout to and returns
// the result. dst is reused when it has enough capacity. The returned slice
// is always exactly media.FrameSize(to, width, height) bytes long.
//
// When from equals to the frame is copied unchanged.
func Convert(dst, src []byte, from, to media.PixelFormat, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrBadDimensions
	}
	if !to.IsYUV420() {
		return nil, fmt.Errorf("%w: target %s", ErrUnsupportedFormat, to)
	}
	need := media.FrameSize(from, width, height)
	if need == 0 {
		return nil, fmt.Errorf("%w: source %s", ErrUnsupportedFormat, from)
	}
	if len(src) < need {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBuffer, len(src), need)
	}
	src = src[:need]
	dst = grow(dst, media.FrameSize(to, width, height))

	if from == to {
		copy(dst, src)
		return dst, nil
	}

	switch {
	case from == media.PixelFormatI420:
		fromI420(dst, src, to, width, height)
		return dst, nil
	case to == media.PixelFormatI420:
		return ToI420(dst, src, from, width, height)
	case isSemiPlanar(from) && isSemiPlanar(to):
		SwapUV(dst, src, width, height)
		return dst, nil
	}

	tmp, err := ToI420(nil, src, from, width, height)
	if err != nil {
		return nil, err
	}
	fromI420(dst, tmp, to, width, height)
	return dst, nil
}

func fromI420(dst, src []byte, to media.PixelFormat, width, height int) {
	switch to {
	case media.PixelFormatNV12:
		I420ToNV12(dst, src, width, height)
	case media.PixelFormatNV21:
		I420ToNV21(dst, src, width, height)
	case media.PixelFormatYV12:
		swapPlanes(dst, src, width, height)
	default:
		copy(dst, src)
	}
}

// ToI420 normalizes any supported layout to planar I420.
func ToI420(dst, src []byte, from media.PixelFormat, width, height int) ([]byte, error) {
	dst = grow(dst, media.FrameSize(media.PixelFormatI420, width, height))
	switch from {
	case media.PixelFormatI420:
		copy(dst, src)
	case media.PixelFormatNV12:
		NV12ToI420(dst, src, width, height)
	case media.PixelFormatNV21:
		NV21ToI420(dst, src, width, height)
	case media.PixelFormatYV12:
		swapPlanes(dst, src, width, height)
	case media.PixelFormatYUYV, media.PixelFormatRGBA:
		return packedToI420(dst, src, from, width, height)
	default:
		return nil, fmt.Errorf("%w: source %s", ErrUnsupportedFormat, from)
	}
	return dst, nil
}

// I420ToNV12 interleaves the U and V planes of src into a UV plane.
func I420ToNV12(dst, src []byte, width, height int) {
	interleave(dst, src, width, height, false)
}

// I420ToNV21 interleaves the U and V planes of src into a VU plane.
func I420ToNV21(dst, src []byte, width, height int) {
	interleave(dst, src, width, height, true)
}

// NV12ToI420 splits the UV plane of src into separate U and V planes.
func NV12ToI420(dst, src []byte, width, height int) {
	deinterleave(dst, src, width, height, false)
}

// NV21ToI420 splits the VU plane of src into separate U and V planes.
func NV21ToI420(dst, src []byte, width, height int) {
	deinterleave(dst, src, width, height, true)
}

// SwapUV converts NV12 to NV21 or back by exchanging each chroma pair.
// dst and src may be the same slice.
func SwapUV(dst, src []byte, width, height int) {
	ySize := width * height
	copy(dst[:ySize], src[:ySize])
	cw, ch := media.ChromaSize(width, height)
	end := ySize + 2*cw*ch
	for i := ySize; i+1 < end; i += 2 {
		dst[i], dst[i+1] = src[i+1], src[i]
	}
}

func interleave(dst, src []byte, width, height int, vFirst bool) {
	ySize := width * height
	cw, ch := media.ChromaSize(width, height)
	cSize := cw * ch
	copy(dst[:ySize], src[:ySize])

	u := src[ySize : ySize+cSize]
	v := src[ySize+cSize : ySize+2*cSize]
	if vFirst {
		u, v = v, u
	}
	out := dst[ySize:]
	for i := 0; i < cSize; i++ {
		out[2*i] = u[i]
		out[2*i+1] = v[i]
	}
}

func deinterleave(dst, src []byte, width, height int, vFirst bool) {
	ySize := width * height
	cw, ch := media.ChromaSize(width, height)
	cSize := cw * ch
	copy(dst[:ySize], src[:ySize])

	u := dst[ySize : ySize+cSize]
	v := dst[ySize+cSize : ySize+2*cSize]
	if vFirst {
		u, v = v, u
	}
	in := src[ySize:]
	for i := 0; i < cSize; i++ {
		u[i] = in[2*i]
		v[i] = in[2*i+1]
	}
}

// swapPlanes converts between I420 and YV12, which differ only in the
// order of their chroma planes.
func swapPlanes(dst, src []byte, width, height int) {
	ySize := width * height
	cw, ch := media.ChromaSize(width, height)
	cSize := cw * ch
	copy(dst[:ySize], src[:ySize])
	copy(dst[ySize:ySize+cSize], src[ySize+cSize:ySize+2*cSize])
	copy(dst[ySize+cSize:ySize+2*cSize], src[ySize:ySize+cSize])
}

func isSemiPlanar(f media.PixelFormat) bool {
	return f == media.PixelFormatNV12 || f == media.PixelFormatNV21
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
