package config

import (
	"errors"
	"fmt"

	"github.com/zsiec/hwenc/internal/media"
)

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateEncoder(),
		c.validateInput(),
		c.validateOutput(),
		c.validateLogging(),
	)
}

func (c *Config) validateEncoder() error {
	var errs []error
	if _, err := c.Codec(); err != nil {
		errs = append(errs, fmt.Errorf("encoder.codec: %w", err))
	}
	if c.Encoder.Width <= 0 || c.Encoder.Height <= 0 {
		errs = append(errs, fmt.Errorf("encoder.width and encoder.height must be positive, got %dx%d", c.Encoder.Width, c.Encoder.Height))
	}
	if c.Encoder.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("encoder.frame_rate must be positive, got %d", c.Encoder.FrameRate))
	}
	if c.Encoder.Bitrate < 0 {
		errs = append(errs, fmt.Errorf("encoder.bitrate must not be negative"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, fmt.Errorf("encoder.pixel_policy: %w", err))
	}
	if c.Encoder.DrainTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("encoder.drain_timeout_ms must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateInput() error {
	switch c.Input.Kind {
	case "raw", "y4m", "pattern":
	default:
		return fmt.Errorf("input.kind must be raw, y4m or pattern, got %q", c.Input.Kind)
	}
	f, err := media.ParsePixelFormat(c.Input.Format)
	if err != nil {
		return fmt.Errorf("input.format: %w", err)
	}
	if c.Input.Kind == "pattern" && !f.IsYUV420() {
		return fmt.Errorf("input.format %q cannot be used with the pattern source", c.Input.Format)
	}
	if c.Input.Frames < 0 {
		return errors.New("input.frames must not be negative")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Container {
	case "ts", "annexb":
		return nil
	}
	return fmt.Errorf("output.container must be ts or annexb, got %q", c.Output.Container)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
