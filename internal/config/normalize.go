package config

import "strings"

func (c *Config) normalize() {
	c.Encoder.Codec = lower(c.Encoder.Codec)
	c.Encoder.PixelPolicy = lower(c.Encoder.PixelPolicy)
	if c.Encoder.PixelPolicy == "" {
		c.Encoder.PixelPolicy = defaultPixelPolicy
	}
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = defaultCodec
	}

	c.Input.Kind = lower(c.Input.Kind)
	c.Input.Format = lower(c.Input.Format)
	if c.Input.Kind == "" {
		c.Input.Kind = defaultInputKind
	}
	if c.Input.Format == "" {
		c.Input.Format = defaultInputFormat
	}
	if strings.TrimSpace(c.Input.Path) == "" {
		c.Input.Path = defaultInputPath
	}

	c.Output.Container = lower(c.Output.Container)
	if c.Output.Container == "" {
		c.Output.Container = defaultContainer
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		c.Output.Path = defaultOutputPath
	}

	if strings.TrimSpace(c.FFmpeg.Binary) == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	if c.FFmpeg.InputBuffers <= 0 {
		c.FFmpeg.InputBuffers = defaultInputBuffers
	}

	c.Logging.Level = lower(c.Logging.Level)
	c.Logging.Format = lower(c.Logging.Format)
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
