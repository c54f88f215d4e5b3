package device

import (
	"context"
	"os/exec"
	"testing"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

func TestPixelPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cpu  string
		want PixelPolicy
	}{
		{"mt6765", PolicyPlanar},
		{"MT8183", PolicyPlanar},
		{"mt", PolicyPlanar},
		{"qcom", PolicySemiPlanar},
		{"exynos9810", PolicySemiPlanar},
		{"m", PolicySemiPlanar},
		{"", PolicySemiPlanar},
	}
	for _, tt := range tests {
		p := Profile{CPUFamily: tt.cpu}
		if got := p.PixelPolicy(); got != tt.want {
			t.Errorf("cpu %q: got %v, want %v", tt.cpu, got, tt.want)
		}
	}
}

func TestPolicyFormats(t *testing.T) {
	t.Parallel()

	if PolicyPlanar.PixelFormat() != media.PixelFormatI420 ||
		PolicyPlanar.ColorFormat() != mediacodec.ColorFormatYUV420Planar {
		t.Error("planar policy should map to I420 / YUV420Planar")
	}
	if PolicySemiPlanar.PixelFormat() != media.PixelFormatNV12 ||
		PolicySemiPlanar.ColorFormat() != mediacodec.ColorFormatYUV420SemiPlanar {
		t.Error("semi-planar policy should map to NV12 / YUV420SemiPlanar")
	}
}

func TestParsePixelPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]PixelPolicy{
		"planar":      PolicyPlanar,
		"Semi-Planar": PolicySemiPlanar,
		"semiplanar":  PolicySemiPlanar,
	} {
		got, err := ParsePixelPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePixelPolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePixelPolicy("packed"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestProbeEnvOverride(t *testing.T) {
	t.Setenv(EnvModel, "Pixel 7")
	t.Setenv(EnvCPU, "mt6789")
	t.Setenv(EnvSDK, "33")

	p := Probe(context.Background(), nil)
	if p.Model != "Pixel 7" || p.CPUFamily != "mt6789" || p.SDKVersion != 33 {
		t.Errorf("got %+v", p)
	}
	if p.PixelPolicy() != PolicyPlanar {
		t.Error("expected planar policy for mt cpu override")
	}
}

func TestGetpropMissingBinary(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/getprop", args...)
	}
	t.Cleanup(func() { commandContext = orig })

	if got := getprop(context.Background(), "ro.hardware"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
