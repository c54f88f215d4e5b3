package pixfmt

import (
	"fmt"
	"image"

	"github.com/pion/mediadevices/pkg/io/video"

	"github.com/zsiec/hwenc/internal/media"
)

// packedToI420 wraps a packed RGBA or YUYV buffer in an image.Image and
// runs it through the mediadevices I420 converter, then copies the planes
// out of the resulting image without stride padding.
func packedToI420(dst, src []byte, from media.PixelFormat, width, height int) ([]byte, error) {
	var img image.Image
	switch from {
	case media.PixelFormatRGBA:
		img = &image.RGBA{
			Pix:    src,
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		}
	case media.PixelFormatYUYV:
		img = yuyvImage(src, width, height)
	default:
		return nil, fmt.Errorf("%w: source %s", ErrUnsupportedFormat, from)
	}

	r := video.ToI420(video.ReaderFunc(func() (image.Image, func(), error) {
		return img, func() {}, nil
	}))
	out, release, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("pixfmt: %s to i420: %w", from, err)
	}
	if release != nil {
		defer release()
	}

	yuv, ok := out.(*image.YCbCr)
	if !ok || yuv.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, fmt.Errorf("%w: converter returned %T", ErrUnsupportedFormat, out)
	}
	if err := copyYCbCr(dst, yuv, width, height); err != nil {
		return nil, err
	}
	return dst, nil
}

// yuyvImage unpacks YUYV into a 4:2:2 image.YCbCr.
func yuyvImage(src []byte, width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	pairs := (width + 1) / 2
	for row := 0; row < height; row++ {
		line := src[row*pairs*4:]
		for p := 0; p < pairs; p++ {
			x := 2 * p
			img.Y[row*img.YStride+x] = line[4*p]
			if x+1 < width {
				img.Y[row*img.YStride+x+1] = line[4*p+2]
			}
			img.Cb[row*img.CStride+p] = line[4*p+1]
			img.Cr[row*img.CStride+p] = line[4*p+3]
		}
	}
	return img
}

func copyYCbCr(dst []byte, img *image.YCbCr, width, height int) error {
	cw, ch := media.ChromaSize(width, height)
	if len(img.Y) < (height-1)*img.YStride+width ||
		len(img.Cb) < (ch-1)*img.CStride+cw || len(img.Cr) < (ch-1)*img.CStride+cw {
		return fmt.Errorf("%w: converted image smaller than %dx%d", ErrShortBuffer, width, height)
	}

	ySize := width * height
	for row := 0; row < height; row++ {
		copy(dst[row*width:(row+1)*width], img.Y[row*img.YStride:])
	}
	u := dst[ySize : ySize+cw*ch]
	v := dst[ySize+cw*ch:]
	for row := 0; row < ch; row++ {
		copy(u[row*cw:(row+1)*cw], img.Cb[row*img.CStride:])
		copy(v[row*cw:(row+1)*cw], img.Cr[row*img.CStride:])
	}
	return nil
}
