package encoder

import (
	"errors"
	"fmt"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

// Sentinel errors. Typed errors below match their class with errors.Is.
var (
	ErrConfiguration = errors.New("encoder: configuration failed")
	ErrFatalDevice   = errors.New("encoder: fatal device error")
	ErrConversion    = errors.New("encoder: pixel conversion failed")
	ErrInvalidFrame  = errors.New("encoder: invalid frame")

	// ErrTryAgain is returned by Drain when no output is ready yet.
	ErrTryAgain = errors.New("encoder: no output ready")
	// ErrInputTimeout is returned by Submit when no input buffer freed up
	// within the input timeout. The frame is dropped.
	ErrInputTimeout = errors.New("encoder: no input buffer available")

	ErrNotRunning  = errors.New("encoder: session not running")
	ErrAlreadyOpen = errors.New("encoder: session already open")
	ErrAborted     = errors.New("encoder: session aborted after device error")
	// ErrEndOfStream is returned by Submit once end of stream has been
	// queued. The codec accepts no further input until Close and Open.
	ErrEndOfStream = errors.New("encoder: end of stream already queued")
)

// IsTransient reports whether err only means "call again later".
func IsTransient(err error) bool {
	return errors.Is(err, ErrTryAgain) || errors.Is(err, ErrInputTimeout)
}

// ConfigError reports which step of Open failed.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("encoder: open: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error        { return e.Err }
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// DeviceError carries an unrecoverable codec status. Err is set when the
// codec reported a Go error rather than a raw code.
type DeviceError struct {
	Op   string
	Code int
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoder: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("encoder: %s: %s", e.Op, mediacodec.CodeName(e.Code))
}

func (e *DeviceError) Unwrap() error        { return e.Err }
func (e *DeviceError) Is(target error) bool { return target == ErrFatalDevice }

// ConversionError reports a frame whose layout could not be converted.
type ConversionError struct {
	From, To media.PixelFormat
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("encoder: convert %s to %s: %v", e.From, e.To, e.Err)
}

func (e *ConversionError) Unwrap() error        { return e.Err }
func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// FrameError reports a frame rejected before it reached the codec.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string        { return "encoder: invalid frame: " + e.Reason }
func (e *FrameError) Is(target error) bool { return target == ErrInvalidFrame }

func invalidFrame(format string, args ...any) error {
	return &FrameError{Reason: fmt.Sprintf(format, args...)}
}
