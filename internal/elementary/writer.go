// Package elementary writes the encoded stream as a raw Annex B
// elementary stream (.h264 / .h265), the format most hardware encoder
// test tools dump.
package elementary

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

// ErrNoStream is returned by Write before CreateStream.
var ErrNoStream = errors.New("elementary: no stream registered")

// Writer is a Multiplexer that concatenates access units. Codec
// configuration is written once, ahead of the first keyframe that does
// not already carry it.
type Writer struct {
	w io.Writer

	mu         sync.Mutex
	codec      media.CodecID
	registered bool
	extradata  []byte
	wroteCfg   bool
	packets    int64
	bytes      int64
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// CreateStream registers the stream. Timestamps are not stored in an
// elementary stream so the time base only matters to callers.
func (w *Writer) CreateStream(codec media.CodecID) (media.StreamHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if codec.MIME() == "" {
		return media.StreamHandle{}, fmt.Errorf("elementary: unsupported codec %s", codec)
	}
	if w.registered {
		return media.StreamHandle{}, fmt.Errorf("elementary: stream already registered")
	}
	w.codec, w.registered = codec, true
	return media.StreamHandle{Index: 0, TimeBase: media.Microseconds}, nil
}

// SetDescriptor records the codec configuration.
func (w *Writer) SetDescriptor(d media.StreamDescriptor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extradata = bytes.Clone(d.Extradata)
}

// Write appends pkt to the stream.
func (w *Writer) Write(pkt *media.EncodedPacket) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.registered {
		return ErrNoStream
	}
	if pkt.CodecConfig {
		if w.extradata == nil {
			w.extradata = bytes.Clone(pkt.Data)
		}
		return nil
	}
	if !w.wroteCfg && pkt.Keyframe && len(w.extradata) > 0 {
		if !carriesParameterSets(w.codec, pkt.Data) {
			if err := w.write(w.extradata); err != nil {
				return err
			}
		}
		w.wroteCfg = true
	}
	if err := w.write(pkt.Data); err != nil {
		return err
	}
	w.packets++
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("elementary: write: %w", err)
	}
	return nil
}

// Counts returns the number of access units and bytes written.
func (w *Writer) Counts() (packets, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets, w.bytes
}

func carriesParameterSets(codec media.CodecID, annexB []byte) bool {
	for _, nal := range h26x.Split(annexB) {
		if h26x.IsParameterSet(codec, nal) {
			return true
		}
	}
	return false
}
