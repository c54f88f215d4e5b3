// Package encoder drives a hardware video encoder through one encoding
// session: it negotiates the codec configuration, converts caller frames
// into the layout the device wants, stamps and submits them, drains
// compressed access units, captures the codec configuration as stream
// extradata, and hands packets to a multiplexer.
//
// A Session is driven by a single goroutine. Only Stats and the accessors
// that copy state out are safe to call from elsewhere.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/hwenc/internal/device"
	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
	"github.com/zsiec/hwenc/internal/pixfmt"
	"github.com/zsiec/hwenc/internal/timestamp"
)

// DefaultDrainTimeout bounds each output poll.
const DefaultDrainTimeout = 10 * time.Millisecond

// State is the lifecycle position of a Session.
type State int

const (
	StateClosed State = iota
	StateConfiguring
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	}
	return "closed"
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder attaches a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithDrainTimeout sets how long Drain waits for each output poll.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Session) { s.drainTimeout = d }
}

// WithInputTimeout bounds how long Submit waits for a free input buffer.
// The default, mediacodec.Infinite, blocks until the codec frees one; a
// stalled codec then stalls the caller.
func WithInputTimeout(d time.Duration) Option {
	return func(s *Session) { s.inputTimeout = d }
}

// Session is one encoder instance bound to one multiplexer stream.
type Session struct {
	log          *slog.Logger
	id           string
	mux          Multiplexer
	rec          Recorder
	drainTimeout time.Duration
	inputTimeout time.Duration

	state     State
	aborted   bool
	eosQueued bool // end-of-stream marker handed to the codec
	eos       bool // end-of-stream buffer drained

	profile   device.Profile
	policy    device.PixelPolicy
	cfg       Config
	codec     mediacodec.Codec
	desc      media.StreamDescriptor
	handle    media.StreamHandle
	frameBase media.Rational
	tracker   *timestamp.Tracker
	convBuf   []byte

	wrote       bool
	lastWritten int64

	counters
}

// New returns a closed Session that will write to mux.
func New(mux Multiplexer, opts ...Option) *Session {
	s := &Session{
		log:          slog.Default(),
		id:           uuid.NewString(),
		mux:          mux,
		rec:          nopRecorder{},
		drainTimeout: DefaultDrainTimeout,
		inputTimeout: mediacodec.Infinite,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "encoder", "session", s.id)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Policy returns the pixel policy chosen by the last Open.
func (s *Session) Policy() device.PixelPolicy { return s.policy }

// Descriptor returns a copy of the stream descriptor.
func (s *Session) Descriptor() media.StreamDescriptor {
	d := s.desc
	d.Extradata = bytes.Clone(s.desc.Extradata)
	return d
}

// Elapsed returns the span between the first and the latest output
// timestamps the codec reported.
func (s *Session) Elapsed() time.Duration {
	if s.tracker == nil {
		return 0
	}
	return time.Duration(s.tracker.Duration()) * time.Microsecond
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats { return s.counters.snapshot() }

// Open configures and starts codec for cfg and registers the output
// stream. The pixel policy comes from cfg.Policy when set, otherwise from
// profile. On failure the codec is stopped and released and the session
// stays closed.
func (s *Session) Open(cfg Config, profile device.Profile, codec mediacodec.Codec) error {
	if s.state != StateClosed {
		return ErrAlreadyOpen
	}
	if codec == nil {
		return &ConfigError{Op: "codec", Err: errors.New("no codec")}
	}
	if s.mux == nil {
		return &ConfigError{Op: "multiplexer", Err: errors.New("no multiplexer")}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}

	s.state = StateConfiguring
	s.profile = profile
	s.policy = profile.PixelPolicy()
	if cfg.Policy != nil {
		s.policy = *cfg.Policy
	}

	format := cfg.Format(s.policy)
	s.log.Info("opening encoder",
		"codec", cfg.Codec, "width", cfg.Width, "height", cfg.Height,
		"fps", cfg.FrameRate, "bitrate", format.Bitrate,
		"profile", format.Profile, "level", format.Level,
		"policy", s.policy, "device", profile.Model, "cpu", profile.CPUFamily, "sdk", profile.SDKVersion)

	fail := func(op string, err error) error {
		s.log.Error("open failed", "op", op, "error", err)
		s.shutdownCodec(codec)
		s.reset()
		return &ConfigError{Op: op, Err: err}
	}

	if err := codec.Configure(format); err != nil {
		return fail("configure", err)
	}
	if err := codec.Start(); err != nil {
		return fail("start", err)
	}
	if err := codec.Flush(); err != nil {
		return fail("flush", err)
	}

	frameBase := media.Rational{Num: 1, Den: int64(cfg.FrameRate)}
	handle, err := s.mux.CreateStream(cfg.Codec)
	if err != nil {
		return fail("create stream", err)
	}
	if !handle.TimeBase.Valid() {
		handle.TimeBase = frameBase
	}

	s.cfg = cfg
	s.codec = codec
	s.handle = handle
	s.frameBase = frameBase
	s.tracker = timestamp.New(cfg.FrameRate)
	s.desc = media.StreamDescriptor{
		Codec:    cfg.Codec,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Bitrate:  format.Bitrate,
		Profile:  format.Profile,
		Level:    format.Level,
		TimeBase: frameBase,
	}
	s.aborted, s.eos, s.eosQueued = false, false, false
	s.wrote, s.lastWritten = false, 0
	s.state = StateRunning
	if sink, ok := s.mux.(DescriptorSink); ok {
		sink.SetDescriptor(s.Descriptor())
	}
	s.log.Info("encoder running", "stream", handle.Index, "timebase", handle.TimeBase)
	return nil
}

func (s *Session) checkRunning() error {
	if s.state != StateRunning {
		return ErrNotRunning
	}
	if s.aborted {
		return ErrAborted
	}
	return nil
}

// Submit converts frame to the codec's layout and queues it. A frame with
// Length 0 queues the end-of-stream marker instead. Submit blocks until an
// input buffer is free or the input timeout expires.
func (s *Session) Submit(frame *media.RawFrame) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if s.eosQueued {
		return ErrEndOfStream
	}
	if err := s.validate(frame); err != nil {
		s.drop(DropInvalid)
		return err
	}
	if frame.Length == 0 {
		return s.queueEndOfStream()
	}

	start := time.Now()
	target := s.policy.PixelFormat()
	payload, err := pixfmt.Convert(s.convBuf, frame.Payload(), frame.Format, target, s.cfg.Width, s.cfg.Height)
	if err != nil {
		s.drop(DropConversion)
		return &ConversionError{From: frame.Format, To: target, Err: err}
	}
	s.convBuf = payload

	idx, err := s.dequeueInput()
	if err != nil {
		return err
	}
	buf, err := s.codec.InputBuffer(idx)
	if err != nil {
		return s.abort(&DeviceError{Op: "input buffer", Code: mediacodec.ErrorBase, Err: err})
	}
	if len(payload) > len(buf) {
		// The slot has been dequeued and must go back to the codec.
		if err := s.codec.QueueInputBuffer(idx, 0, 0, s.tracker.Cursor(), 0); err != nil {
			return s.abort(&DeviceError{Op: "queue input", Code: mediacodec.ErrorBase, Err: err})
		}
		s.drop(DropInvalid)
		return invalidFrame("converted frame is %d bytes, input buffer holds %d", len(payload), len(buf))
	}
	n := copy(buf, payload)

	var pts int64
	if frame.PTS > 0 {
		pts = frame.PTS * 1000
		s.tracker.SetCursor(pts)
	} else {
		pts = s.tracker.Next()
	}

	if err := s.codec.QueueInputBuffer(idx, 0, n, pts, 0); err != nil {
		return s.abort(&DeviceError{Op: "queue input", Code: mediacodec.ErrorBase, Err: err})
	}
	s.framesSubmitted.Add(1)
	s.rec.FrameSubmitted(time.Since(start))
	s.log.Debug("frame queued", "index", idx, "size", n, "pts", pts)
	return nil
}

// maxCallerPTS is the largest millisecond timestamp that converts to
// microseconds without overflowing int64.
const maxCallerPTS = math.MaxInt64 / 1000

func (s *Session) validate(frame *media.RawFrame) error {
	switch {
	case frame == nil:
		return invalidFrame("nil frame")
	case frame.Type != media.MediaTypeVideo:
		return invalidFrame("media type %s", frame.Type)
	case frame.Length < 0:
		return invalidFrame("negative length %d", frame.Length)
	case frame.Length == 0:
		return nil
	case frame.Length > len(frame.Data):
		return invalidFrame("length %d exceeds buffer of %d bytes", frame.Length, len(frame.Data))
	case frame.Width != s.cfg.Width || frame.Height != s.cfg.Height:
		return invalidFrame("frame is %dx%d, session is %dx%d", frame.Width, frame.Height, s.cfg.Width, s.cfg.Height)
	}
	if want := media.FrameSize(frame.Format, frame.Width, frame.Height); want != 0 && frame.Length != want {
		return invalidFrame("%s %dx%d needs %d bytes, got %d", frame.Format, frame.Width, frame.Height, want, frame.Length)
	}
	if frame.PTS > maxCallerPTS {
		return invalidFrame("pts %dms overflows microseconds", frame.PTS)
	}
	return nil
}

func (s *Session) dequeueInput() (int, error) {
	for {
		idx := s.codec.DequeueInputBuffer(s.inputTimeout)
		switch mediacodec.Classify(idx) {
		case mediacodec.StatusBuffer:
			return idx, nil
		case mediacodec.StatusFatal:
			return 0, s.abort(&DeviceError{Op: "dequeue input", Code: idx})
		case mediacodec.StatusEvent:
			s.log.Debug("input event", "event", mediacodec.CodeName(idx))
			continue
		}
		s.drop(DropTimeout)
		s.log.Warn("no input buffer available, frame dropped", "timeout", s.inputTimeout)
		return 0, ErrInputTimeout
	}
}

func (s *Session) queueEndOfStream() error {
	idx, err := s.dequeueInput()
	if err != nil {
		return err
	}
	if err := s.codec.QueueInputBuffer(idx, 0, 0, s.tracker.Cursor(), mediacodec.FlagEndOfStream); err != nil {
		return s.abort(&DeviceError{Op: "queue end of stream", Code: mediacodec.ErrorBase, Err: err})
	}
	s.eosQueued = true
	s.log.Info("end of stream queued", "pts", s.tracker.Cursor())
	return nil
}

// Drain polls the codec for one encoded packet. It returns ErrTryAgain
// when nothing is ready within the drain timeout and io.EOF once the
// end-of-stream buffer has come out. Format and buffer change events and
// codec configuration buffers are consumed without returning.
func (s *Session) Drain() (*media.EncodedPacket, error) {
	if err := s.checkRunning(); err != nil {
		return nil, err
	}
	for !s.eos {
		code, info := s.codec.DequeueOutputBuffer(s.drainTimeout)
		switch mediacodec.Classify(code) {
		case mediacodec.StatusTryAgain:
			s.drainRetries.Add(1)
			s.rec.DrainRetry()
			return nil, ErrTryAgain
		case mediacodec.StatusFatal:
			return nil, s.abort(&DeviceError{Op: "dequeue output", Code: code})
		case mediacodec.StatusEvent:
			s.log.Info("codec event", "event", mediacodec.CodeName(code))
			continue
		}

		pkt, err := s.takeOutput(code, info)
		if err != nil || pkt != nil {
			return pkt, err
		}
	}
	return nil, io.EOF
}

// takeOutput consumes output buffer idx and always releases it.
func (s *Session) takeOutput(idx int, info mediacodec.BufferInfo) (*media.EncodedPacket, error) {
	defer func() {
		if err := s.codec.ReleaseOutputBuffer(idx); err != nil {
			s.log.Warn("release output buffer failed", "index", idx, "error", err)
		}
	}()

	buf, err := s.codec.OutputBuffer(idx)
	if err != nil {
		return nil, s.abort(&DeviceError{Op: "output buffer", Code: mediacodec.ErrorBase, Err: err})
	}
	if info.Offset < 0 || info.Size < 0 || info.Offset+info.Size > len(buf) {
		return nil, s.abort(&DeviceError{Op: "output buffer", Code: mediacodec.ErrorMalformed,
			Err: fmt.Errorf("range %d+%d outside %d-byte buffer", info.Offset, info.Size, len(buf))})
	}
	data := buf[info.Offset : info.Offset+info.Size]

	if info.Flags.Has(mediacodec.FlagEndOfStream) {
		s.eos = true
		s.log.Info("end of stream drained", "size", info.Size)
		if info.Size == 0 {
			return nil, nil
		}
	}
	if info.Flags.Has(mediacodec.FlagCodecConfig) {
		s.captureExtradata(data)
		return nil, nil
	}

	s.tracker.Observe(info.PTS)
	pkt := s.buildPacket(data, info)
	s.packetsDrained.Add(1)
	if pkt.Keyframe {
		s.keyframes.Add(1)
	}
	s.log.Debug("packet drained", "size", pkt.Size(), "pts", pkt.PTS, "key", pkt.Keyframe, "bufferPts", info.PTS)
	return pkt, nil
}

func (s *Session) captureExtradata(data []byte) {
	if len(data) == 0 {
		s.log.Warn("ignoring empty codec config buffer")
		return
	}
	if s.desc.Extradata != nil {
		s.log.Warn("ignoring repeated codec config buffer", "size", len(data))
		return
	}
	s.desc.Extradata = bytes.Clone(data)

	cs, err := h26x.CodecString(s.cfg.Codec, s.desc.Extradata)
	if err != nil {
		s.log.Warn("codec config has no parsable sps", "error", err)
	}
	s.desc.CodecString = cs
	if sink, ok := s.mux.(DescriptorSink); ok {
		sink.SetDescriptor(s.Descriptor())
	}
	s.rec.ExtradataCaptured()
	s.log.Info("extradata captured", "size", len(data), "codec", cs)
}

// WritePacket hands pkt to the multiplexer. A timestamp lower than the
// last written one is raised to it so the stream stays non-decreasing.
func (s *Session) WritePacket(pkt *media.EncodedPacket) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if s.wrote && pkt.PTS < s.lastWritten {
		s.log.Debug("clamping backwards pts", "pts", pkt.PTS, "last", s.lastWritten)
		pkt.PTS, pkt.DTS = s.lastWritten, s.lastWritten
	}
	if err := s.mux.Write(pkt); err != nil {
		return fmt.Errorf("encoder: write packet: %w", err)
	}
	s.wrote, s.lastWritten = true, pkt.PTS
	s.packetsWritten.Add(1)
	s.bytesWritten.Add(int64(pkt.Size()))
	s.lastPTS.Store(pkt.PTS)
	s.rec.PacketWritten(pkt.Size(), pkt.Keyframe)
	return nil
}

// Encode submits frame, drains at most one packet and writes it. It
// returns the number of packets written. No output being ready is not an
// error.
func (s *Session) Encode(frame *media.RawFrame) (int, error) {
	if err := s.Submit(frame); err != nil {
		return 0, err
	}
	pkt, err := s.Drain()
	switch {
	case errors.Is(err, ErrTryAgain), errors.Is(err, io.EOF):
		return 0, nil
	case err != nil:
		return 0, err
	}
	if err := s.WritePacket(pkt); err != nil {
		return 0, err
	}
	return 1, nil
}

// Flush queues end of stream and writes every remaining packet until the
// codec reports end of stream or ctx is done.
func (s *Session) Flush(ctx context.Context) error {
	if !s.eosQueued {
		if err := s.Submit(&media.RawFrame{Type: media.MediaTypeVideo}); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := s.Drain()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrTryAgain):
			continue
		case err != nil:
			return err
		}
		if err := s.WritePacket(pkt); err != nil {
			return err
		}
	}
}

// Close stops and releases the codec and forgets the device profile. It
// is safe to call on a session that was never opened and to call more
// than once. Codec failures are logged, never returned.
func (s *Session) Close() error {
	if s.codec != nil {
		if err := s.codec.Flush(); err != nil {
			s.log.Warn("codec flush on close failed", "error", err)
		}
		s.shutdownCodec(s.codec)
		s.log.Info("encoder closed", "stats", s.Stats())
	}
	s.reset()
	return nil
}

func (s *Session) shutdownCodec(c mediacodec.Codec) {
	if err := c.Stop(); err != nil {
		s.log.Warn("codec stop failed", "error", err)
	}
	if err := c.Release(); err != nil {
		s.log.Warn("codec release failed", "error", err)
	}
}

func (s *Session) reset() {
	s.codec = nil
	s.profile = device.Profile{}
	s.convBuf = nil
	s.aborted, s.eos, s.eosQueued = false, false, false
	s.state = StateClosed
}

func (s *Session) abort(err *DeviceError) error {
	s.aborted = true
	s.rec.FatalError()
	s.log.Error("encoder aborted", "error", err)
	return err
}

func (s *Session) drop(reason string) {
	s.framesDropped.Add(1)
	s.rec.FrameDropped(reason)
}
