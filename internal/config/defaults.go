package config

import "github.com/zsiec/hwenc/internal/encoder"

const (
	defaultCodec          = "h264"
	defaultWidth          = 1280
	defaultHeight         = 720
	defaultFrameRate      = 30
	defaultPixelPolicy    = "auto"
	defaultInputTimeoutMs = -1
	defaultInputKind      = "pattern"
	defaultInputPath      = "-"
	defaultInputFormat    = "i420"
	defaultPatternFrames  = 300
	defaultContainer      = "ts"
	defaultOutputPath     = "out.ts"
	defaultFFmpegBinary   = "ffmpeg"
	defaultInputBuffers   = 4
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Encoder: Encoder{
			Codec:          defaultCodec,
			Width:          defaultWidth,
			Height:         defaultHeight,
			FrameRate:      defaultFrameRate,
			PixelPolicy:    defaultPixelPolicy,
			DrainTimeoutMs: int(encoder.DefaultDrainTimeout.Milliseconds()),
			InputTimeoutMs: defaultInputTimeoutMs,
		},
		Input: Input{
			Kind:   defaultInputKind,
			Path:   defaultInputPath,
			Format: defaultInputFormat,
			Frames: defaultPatternFrames,
		},
		Output: Output{
			Container: defaultContainer,
			Path:      defaultOutputPath,
		},
		FFmpeg: FFmpeg{
			Binary:       defaultFFmpegBinary,
			InputBuffers: defaultInputBuffers,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
