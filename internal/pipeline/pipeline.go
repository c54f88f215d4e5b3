// Package pipeline moves frames from a source through an encoding session
// into its multiplexer, and drains the session to end of stream when the
// source runs out or the context is cancelled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/hwenc/internal/encoder"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/source"
)

// DefaultFlushTimeout bounds the end-of-stream drain after the source
// finishes.
const DefaultFlushTimeout = 5 * time.Second

// Encoder is the subset of encoder.Session the pipeline drives.
type Encoder interface {
	Submit(frame *media.RawFrame) error
	Drain() (*media.EncodedPacket, error)
	WritePacket(pkt *media.EncodedPacket) error
	Flush(ctx context.Context) error
	Stats() encoder.Stats
}

var _ Encoder = (*encoder.Session)(nil)

// Stats is a snapshot of pipeline progress.
type Stats struct {
	UptimeMs         int64         `json:"uptimeMs"`
	FramesRead       int64         `json:"framesRead"`
	FramesSkipped    int64         `json:"framesSkipped"`
	PacketsForwarded int64         `json:"packetsForwarded"`
	LastPTS          int64         `json:"lastPts"`
	Source           source.Stats  `json:"source"`
	Encoder          encoder.Stats `json:"encoder"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithFlushTimeout overrides DefaultFlushTimeout.
func WithFlushTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.flushTimeout = d }
}

// WithRealtime paces frame submission at the source frame rate.
func WithRealtime() Option {
	return func(p *Pipeline) { p.realtime = true }
}

// Pipeline bridges one Source and one Encoder.
type Pipeline struct {
	log          *slog.Logger
	src          source.Source
	enc          Encoder
	flushTimeout time.Duration
	realtime     bool
	startTime    time.Time

	framesRead       atomic.Int64
	framesSkipped    atomic.Int64
	packetsForwarded atomic.Int64
	lastPTS          atomic.Int64
}

// New creates a pipeline. enc must already be open.
func New(src source.Source, enc Encoder, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:          slog.Default(),
		src:          src,
		enc:          enc,
		flushTimeout: DefaultFlushTimeout,
		startTime:    time.Now(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("component", "pipeline")
	return p
}

// Stats returns a snapshot safe to call while Run is in progress.
func (p *Pipeline) Stats() Stats {
	return Stats{
		UptimeMs:         time.Since(p.startTime).Milliseconds(),
		FramesRead:       p.framesRead.Load(),
		FramesSkipped:    p.framesSkipped.Load(),
		PacketsForwarded: p.packetsForwarded.Load(),
		LastPTS:          p.lastPTS.Load(),
		Source:           p.src.Stats(),
		Encoder:          p.enc.Stats(),
	}
}

// Run encodes until the source reports io.EOF or ctx is done, then
// flushes the encoder. Frames the session rejects are skipped; device
// and multiplexer errors end the run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startTime = time.Now()
	var ticker *time.Ticker
	if p.realtime {
		ticker = time.NewTicker(time.Second / time.Duration(max(p.src.Info().FrameRate, 1)))
		defer ticker.Stop()
	}

	for {
		frame, err := p.src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			break
		}
		if err != nil {
			return fmt.Errorf("pipeline: read frame: %w", err)
		}
		p.framesRead.Add(1)

		if err := p.enc.Submit(frame); err != nil {
			if !skippable(err) {
				return fmt.Errorf("pipeline: submit: %w", err)
			}
			p.framesSkipped.Add(1)
			p.log.Warn("frame skipped", "frame", p.framesRead.Load(), "error", err)
		}
		if err := p.drainReady(); err != nil {
			return err
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
			}
		}
	}

	p.log.Info("source finished, flushing encoder", "frames", p.framesRead.Load())
	fctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()
	if err := p.enc.Flush(fctx); err != nil {
		return fmt.Errorf("pipeline: flush: %w", err)
	}
	p.packetsForwarded.Store(p.enc.Stats().PacketsWritten)
	p.log.Info("pipeline finished", "stats", p.Stats())
	return nil
}

func skippable(err error) bool {
	return errors.Is(err, encoder.ErrInvalidFrame) ||
		errors.Is(err, encoder.ErrConversion) ||
		errors.Is(err, encoder.ErrInputTimeout)
}

// drainReady writes every packet the encoder has ready.
func (p *Pipeline) drainReady() error {
	for {
		pkt, err := p.enc.Drain()
		switch {
		case errors.Is(err, encoder.ErrTryAgain), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("pipeline: drain: %w", err)
		}
		if err := p.enc.WritePacket(pkt); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		p.packetsForwarded.Add(1)
		p.lastPTS.Store(pkt.PTS)
	}
}
