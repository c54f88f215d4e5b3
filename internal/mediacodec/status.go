package mediacodec

import (
	"errors"
	"fmt"
)

// Raw status codes returned by dequeue calls.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3

	// ErrorBase is the first media error code; every code at or below it
	// is unrecoverable for the codec instance.
	ErrorBase        = -10000
	ErrorMalformed   = ErrorBase - 1
	ErrorUnsupported = ErrorBase - 2
	ErrorInvalidObj  = ErrorBase - 3
	ErrorIO          = ErrorBase - 4
	ErrorInvalidOp   = ErrorBase - 9
	DRMErrorBase     = -20000
)

// Status is the classification of a raw dequeue code.
type Status int

const (
	StatusBuffer Status = iota
	StatusTryAgain
	StatusEvent
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusBuffer:
		return "buffer"
	case StatusTryAgain:
		return "try-again"
	case StatusEvent:
		return "event"
	case StatusFatal:
		return "fatal"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Classify maps a raw code to its Status. Non-negative codes are buffer
// indices. Codes at or below ErrorBase are fatal, including the DRM range.
// Every other negative code, known or not, is an informational event.
func Classify(code int) Status {
	switch {
	case code >= 0:
		return StatusBuffer
	case code == InfoTryAgainLater:
		return StatusTryAgain
	case code <= ErrorBase:
		return StatusFatal
	default:
		return StatusEvent
	}
}

// CodeName returns a short name for well-known codes.
func CodeName(code int) string {
	switch {
	case code >= 0:
		return fmt.Sprintf("buffer#%d", code)
	case code == InfoTryAgainLater:
		return "try-again-later"
	case code == InfoOutputFormatChanged:
		return "output-format-changed"
	case code == InfoOutputBuffersChanged:
		return "output-buffers-changed"
	case code <= DRMErrorBase:
		return fmt.Sprintf("drm-error(%d)", code)
	case code <= ErrorBase:
		return fmt.Sprintf("media-error(%d)", code)
	}
	return fmt.Sprintf("info(%d)", code)
}

// ErrCodec is wrapped by every StatusError.
var ErrCodec = errors.New("mediacodec: codec error")

// StatusError carries a fatal raw code out of a codec operation.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mediacodec: %s: %s", e.Op, CodeName(e.Code))
}

func (e *StatusError) Unwrap() error { return ErrCodec }
