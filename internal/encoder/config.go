package encoder

import (
	"errors"
	"fmt"

	"github.com/zsiec/hwenc/internal/device"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

// Bitrate defaults applied when Config.Bitrate is not positive.
const (
	DefaultBitrate    = 8_000_000
	DefaultBitrateLow = 3_000_000
)

// IFrameInterval is the keyframe interval requested from the codec, in
// seconds.
const IFrameInterval = 1

const (
	pixels720p  = 1280 * 720
	pixels1080p = 1920 * 1080
)

// Config is fixed for the lifetime of an open session.
type Config struct {
	Width     int
	Height    int
	Bitrate   int // bits per second; <= 0 selects a default from the resolution
	FrameRate int
	Codec     media.CodecID

	// Policy overrides the pixel policy derived from the device profile.
	Policy *device.PixelPolicy
}

// Validate checks that the configuration can be opened.
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", c.Width, c.Height))
	}
	if c.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame rate %d", c.FrameRate))
	}
	if c.Codec != media.CodecAVC && c.Codec != media.CodecHEVC {
		errs = append(errs, fmt.Errorf("unsupported codec %v", c.Codec))
	}
	return errors.Join(errs...)
}

// EffectiveBitrate returns Bitrate, or the resolution default when it is
// not positive. Frames of 1280x720 pixels or more get DefaultBitrate.
func (c Config) EffectiveBitrate() int {
	if c.Bitrate > 0 {
		return c.Bitrate
	}
	if c.Width*c.Height >= pixels720p {
		return DefaultBitrate
	}
	return DefaultBitrateLow
}

// ProfileLevel returns the codec profile and level for a resolution. The
// level moves up one tier at 1920x1080 pixels or more.
func ProfileLevel(codec media.CodecID, width, height int) (profile, level int) {
	large := width*height >= pixels1080p
	switch codec {
	case media.CodecHEVC:
		if large {
			return mediacodec.HEVCProfileMain, mediacodec.HEVCHighTierLevel4
		}
		return mediacodec.HEVCProfileMain, mediacodec.HEVCHighTierLevel31
	default:
		if large {
			return mediacodec.AVCProfileHigh, mediacodec.AVCLevel4
		}
		return mediacodec.AVCProfileHigh, mediacodec.AVCLevel31
	}
}

// Format builds the codec configuration for c under the given pixel policy.
func (c Config) Format(policy device.PixelPolicy) mediacodec.Format {
	bitrate := c.EffectiveBitrate()
	profile, level := ProfileLevel(c.Codec, c.Width, c.Height)
	return mediacodec.Format{
		MIME:           c.Codec.MIME(),
		Width:          c.Width,
		Height:         c.Height,
		Bitrate:        bitrate,
		MaxBitrate:     bitrate * 2,
		BitrateMode:    mediacodec.BitrateModeVBR,
		FrameRate:      c.FrameRate,
		ColorFormat:    policy.ColorFormat(),
		IFrameInterval: IFrameInterval,
		Profile:        profile,
		Level:          level,
	}
}
