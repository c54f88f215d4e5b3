// Package device describes the host an encoder runs on and derives the
// input pixel layout its hardware encoder expects.
package device

import (
	"fmt"
	"strings"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

// Profile identifies the device. Fields are plain values; a session copies
// the profile once and never consults the platform again.
type Profile struct {
	SDKVersion int    `json:"sdk_version"`
	Model      string `json:"model"`
	CPUFamily  string `json:"cpu_family"`
}

func (p Profile) String() string {
	return fmt.Sprintf("model=%q cpu=%q sdk=%d", p.Model, p.CPUFamily, p.SDKVersion)
}

// PixelPolicy is the input layout family a hardware encoder requires.
type PixelPolicy int

const (
	// PolicySemiPlanar feeds NV12 (interleaved UV).
	PolicySemiPlanar PixelPolicy = iota
	// PolicyPlanar feeds I420.
	PolicyPlanar
)

func (p PixelPolicy) String() string {
	if p == PolicyPlanar {
		return "planar"
	}
	return "semi-planar"
}

// ParsePixelPolicy accepts "planar" and "semi-planar" (or "semiplanar").
func ParsePixelPolicy(s string) (PixelPolicy, error) {
	switch strings.ToLower(s) {
	case "planar":
		return PolicyPlanar, nil
	case "semi-planar", "semiplanar":
		return PolicySemiPlanar, nil
	}
	return 0, fmt.Errorf("device: unknown pixel policy %q", s)
}

// PixelFormat returns the raw layout frames are converted to.
func (p PixelPolicy) PixelFormat() media.PixelFormat {
	if p == PolicyPlanar {
		return media.PixelFormatI420
	}
	return media.PixelFormatNV12
}

// ColorFormat returns the codec color format matching the policy.
func (p PixelPolicy) ColorFormat() mediacodec.ColorFormat {
	if p == PolicyPlanar {
		return mediacodec.ColorFormatYUV420Planar
	}
	return mediacodec.ColorFormatYUV420SemiPlanar
}

// PixelPolicy selects planar input for MediaTek SoCs, whose hardware
// family string starts with "mt", and semi-planar input everywhere else.
func (p Profile) PixelPolicy() PixelPolicy {
	if strings.HasPrefix(strings.ToLower(p.CPUFamily), "mt") {
		return PolicyPlanar
	}
	return PolicySemiPlanar
}
