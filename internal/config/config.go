// Package config loads the TOML configuration shared by the hwenc
// commands. Every field has a default so an empty or missing file yields
// a usable configuration; a few HWENC_* environment variables override
// the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/zsiec/hwenc/internal/device"
	"github.com/zsiec/hwenc/internal/encoder"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/source"
)

// Encoder holds the session parameters.
type Encoder struct {
	Codec          string `toml:"codec"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	FrameRate      int    `toml:"frame_rate"`
	Bitrate        int    `toml:"bitrate"`      // 0 picks a default from the resolution
	PixelPolicy    string `toml:"pixel_policy"` // auto, planar or semi-planar
	DrainTimeoutMs int    `toml:"drain_timeout_ms"`
	InputTimeoutMs int    `toml:"input_timeout_ms"` // negative blocks forever
}

// Input selects the frame source.
type Input struct {
	Kind     string `toml:"kind"` // raw, y4m or pattern
	Path     string `toml:"path"` // "-" reads stdin
	Format   string `toml:"format"`
	Frames   int    `toml:"frames"` // pattern length, 0 for unbounded
	Realtime bool   `toml:"realtime"`
}

// Output selects the container.
type Output struct {
	Container string `toml:"container"` // ts or annexb
	Path      string `toml:"path"`      // "-" writes stdout
}

// FFmpeg configures the software codec backend.
type FFmpeg struct {
	Binary       string   `toml:"binary"`
	Encoder      string   `toml:"encoder"`
	InputBuffers int      `toml:"input_buffers"`
	ExtraArgs    []string `toml:"extra_args"`
}

// Device overrides probed device properties.
type Device struct {
	SDKVersion int    `toml:"sdk_version"`
	Model      string `toml:"model"`
	CPUFamily  string `toml:"cpu_family"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `toml:"addr"` // empty disables the endpoint
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Config is the complete configuration.
type Config struct {
	Encoder Encoder `toml:"encoder"`
	Input   Input   `toml:"input"`
	Output  Output  `toml:"output"`
	FFmpeg  FFmpeg  `toml:"ffmpeg"`
	Device  Device  `toml:"device"`
	Metrics Metrics `toml:"metrics"`
	Logging Logging `toml:"logging"`
}

// Environment variables applied after the file.
const (
	EnvLogLevel    = "HWENC_LOG_LEVEL"
	EnvFFmpeg      = "HWENC_FFMPEG"
	EnvMetricsAddr = "HWENC_METRICS_ADDR"
)

// Load reads path, applies environment overrides, fills defaults and
// validates. An empty path, or one that does not exist, yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Encode renders cfg as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) applyEnv() {
	c.Logging.Level = envOr(EnvLogLevel, c.Logging.Level)
	c.FFmpeg.Binary = envOr(EnvFFmpeg, c.FFmpeg.Binary)
	c.Metrics.Addr = envOr(EnvMetricsAddr, c.Metrics.Addr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Codec returns the parsed codec.
func (c *Config) Codec() (media.CodecID, error) {
	return media.ParseCodec(c.Encoder.Codec)
}

// Policy returns the forced pixel policy, or nil for auto.
func (c *Config) Policy() (*device.PixelPolicy, error) {
	if c.Encoder.PixelPolicy == "auto" {
		return nil, nil
	}
	p, err := device.ParsePixelPolicy(c.Encoder.PixelPolicy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EncoderConfig builds the session configuration.
func (c *Config) EncoderConfig() (encoder.Config, error) {
	codec, err := c.Codec()
	if err != nil {
		return encoder.Config{}, err
	}
	policy, err := c.Policy()
	if err != nil {
		return encoder.Config{}, err
	}
	return encoder.Config{
		Width:     c.Encoder.Width,
		Height:    c.Encoder.Height,
		Bitrate:   c.Encoder.Bitrate,
		FrameRate: c.Encoder.FrameRate,
		Codec:     codec,
		Policy:    policy,
	}, nil
}

// SessionOptions returns the timeouts as session options.
func (c *Config) SessionOptions() []encoder.Option {
	opts := []encoder.Option{
		encoder.WithDrainTimeout(time.Duration(c.Encoder.DrainTimeoutMs) * time.Millisecond),
	}
	if c.Encoder.InputTimeoutMs >= 0 {
		opts = append(opts, encoder.WithInputTimeout(time.Duration(c.Encoder.InputTimeoutMs)*time.Millisecond))
	}
	return opts
}

// SourceInfo describes the frames the configured input produces. Y4M
// inputs override it from their own header.
func (c *Config) SourceInfo() (source.Info, error) {
	f, err := media.ParsePixelFormat(c.Input.Format)
	if err != nil {
		return source.Info{}, err
	}
	return source.Info{
		Width:     c.Encoder.Width,
		Height:    c.Encoder.Height,
		Format:    f,
		FrameRate: c.Encoder.FrameRate,
	}, nil
}

// ApplyDevice overlays configured device fields on a probed profile.
func (c *Config) ApplyDevice(p device.Profile) device.Profile {
	if c.Device.SDKVersion > 0 {
		p.SDKVersion = c.Device.SDKVersion
	}
	if c.Device.Model != "" {
		p.Model = c.Device.Model
	}
	if c.Device.CPUFamily != "" {
		p.CPUFamily = c.Device.CPUFamily
	}
	return p
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
