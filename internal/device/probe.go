package device

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// Environment variables that override probed values.
const (
	EnvSDK   = "HWENC_SDK"
	EnvModel = "HWENC_MODEL"
	EnvCPU   = "HWENC_CPU"
)

var commandContext = exec.CommandContext

// Probe builds a Profile for the current host. Each field is taken from
// the first source that yields a value: the HWENC_* environment variables,
// Android system properties via getprop, then gopsutil host and CPU
// information. Probe never fails; fields it cannot determine stay empty.
func Probe(ctx context.Context, log *slog.Logger) Profile {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "device")

	var p Profile
	p.Model = os.Getenv(EnvModel)
	p.CPUFamily = os.Getenv(EnvCPU)
	if v := os.Getenv(EnvSDK); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.SDKVersion = n
		} else {
			log.Warn("ignoring invalid sdk override", "value", v, "error", err)
		}
	}

	if p.SDKVersion == 0 {
		if n, err := strconv.Atoi(getprop(ctx, "ro.build.version.sdk")); err == nil {
			p.SDKVersion = n
		}
	}
	if p.Model == "" {
		p.Model = getprop(ctx, "ro.product.model")
	}
	if p.CPUFamily == "" {
		p.CPUFamily = getprop(ctx, "ro.hardware")
	}

	if p.Model == "" {
		if info, err := host.InfoWithContext(ctx); err == nil {
			p.Model = strings.TrimSpace(info.Platform + " " + info.KernelArch)
		} else {
			log.Debug("host info unavailable", "error", err)
		}
	}
	if p.CPUFamily == "" {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			p.CPUFamily = cpuFamily(infos[0])
		} else if err != nil {
			log.Debug("cpu info unavailable", "error", err)
		}
	}

	log.Info("device probed", "model", p.Model, "cpu", p.CPUFamily, "sdk", p.SDKVersion)
	return p
}

func cpuFamily(info cpu.InfoStat) string {
	for _, s := range []string{info.ModelName, info.VendorID, info.Family} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// getprop returns an Android system property or "" when getprop is absent.
func getprop(ctx context.Context, name string) string {
	out, err := commandContext(ctx, "getprop", name).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
