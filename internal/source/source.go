// Package source produces raw frames for an encoding session: headerless
// raw video, YUV4MPEG2 streams and a synthetic test pattern.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/zsiec/hwenc/internal/media"
)

// Info describes the frames a Source produces.
type Info struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Format    media.PixelFormat `json:"format"`
	FrameRate int               `json:"frameRate"`
}

// FrameSize returns the byte size of one frame.
func (i Info) FrameSize() int { return media.FrameSize(i.Format, i.Width, i.Height) }

// Validate checks that frames can be sized.
func (i Info) Validate() error {
	if i.Width <= 0 || i.Height <= 0 {
		return fmt.Errorf("source: invalid dimensions %dx%d", i.Width, i.Height)
	}
	if i.FrameRate <= 0 {
		return fmt.Errorf("source: invalid frame rate %d", i.FrameRate)
	}
	if i.FrameSize() == 0 {
		return fmt.Errorf("source: unsupported pixel format %s", i.Format)
	}
	return nil
}

// Source yields raw frames until io.EOF. The returned frame and its Data
// are only valid until the next call.
type Source interface {
	Info() Info
	ReadFrame(ctx context.Context) (*media.RawFrame, error)
	Stats() Stats
}

// Stats captures source-side counters.
type Stats struct {
	FramesRead int64 `json:"framesRead"`
	BytesRead  int64 `json:"bytesRead"`
	StartedAt  int64 `json:"startedAt"`
	UptimeMs   int64 `json:"uptimeMs"`
}

type counters struct {
	startedAt  time.Time
	framesRead atomic.Int64
	bytesRead  atomic.Int64
}

func newCounters() counters { return counters{startedAt: time.Now()} }

func (c *counters) record(n int) {
	c.framesRead.Add(1)
	c.bytesRead.Add(int64(n))
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesRead: c.framesRead.Load(),
		BytesRead:  c.bytesRead.Load(),
		StartedAt:  c.startedAt.UnixMilli(),
		UptimeMs:   time.Since(c.startedAt).Milliseconds(),
	}
}

// Raw reads headerless frames of a fixed layout back to back.
type Raw struct {
	r     io.Reader
	info  Info
	frame media.RawFrame
	stats counters
}

// NewRaw wraps r. Every frame is exactly info.FrameSize() bytes.
func NewRaw(r io.Reader, info Info) (*Raw, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Raw{
		r:     r,
		info:  info,
		frame: newFrame(info),
		stats: newCounters(),
	}, nil
}

func newFrame(info Info) media.RawFrame {
	size := info.FrameSize()
	return media.RawFrame{
		Type:   media.MediaTypeVideo,
		Format: info.Format,
		Width:  info.Width,
		Height: info.Height,
		Data:   make([]byte, size),
		Length: size,
	}
}

func (s *Raw) Info() Info   { return s.info }
func (s *Raw) Stats() Stats { return s.stats.snapshot() }

// ReadFrame reads the next frame. A trailing partial frame is reported as
// io.ErrUnexpectedEOF.
func (s *Raw) ReadFrame(ctx context.Context) (*media.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := readFull(s.r, s.frame.Data); err != nil {
		return nil, err
	}
	s.stats.record(len(s.frame.Data))
	return &s.frame, nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("source: truncated frame: %w", err)
	}
	return fmt.Errorf("source: read: %w", err)
}
