package mediacodec

import (
	"errors"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want Status
	}{
		{1, StatusBuffer},
		{0, StatusBuffer},
		{InfoTryAgainLater, StatusTryAgain},
		{InfoOutputFormatChanged, StatusEvent},
		{InfoOutputBuffersChanged, StatusEvent},
		{-4, StatusEvent},
		{-9999, StatusEvent},
		{ErrorBase, StatusFatal},
		{-10001, StatusFatal},
		{-19999, StatusFatal},
		{DRMErrorBase, StatusFatal},
		{-20001, StatusFatal},
	}
	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCodeName(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		3:                        "buffer#3",
		InfoTryAgainLater:        "try-again-later",
		InfoOutputFormatChanged:  "output-format-changed",
		InfoOutputBuffersChanged: "output-buffers-changed",
		-7:                       "info(-7)",
		ErrorIO:                  "media-error(-10004)",
		-20003:                   "drm-error(-20003)",
	}
	for code, want := range tests {
		if got := CodeName(code); got != want {
			t.Errorf("CodeName(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestStatusErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &StatusError{Op: "configure", Code: ErrorUnsupported}
	if !errors.Is(err, ErrCodec) {
		t.Error("StatusError should wrap ErrCodec")
	}
	if got, want := err.Error(), "mediacodec: configure: media-error(-10002)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBufferFlagsHas(t *testing.T) {
	t.Parallel()

	f := FlagKeyFrame | FlagEndOfStream
	if !f.Has(FlagKeyFrame) || !f.Has(FlagEndOfStream) {
		t.Error("expected key and eos bits")
	}
	if f.Has(FlagCodecConfig) {
		t.Error("unexpected codec-config bit")
	}
	if f.Has(FlagKeyFrame | FlagCodecConfig) {
		t.Error("Has should require every bit")
	}
}
