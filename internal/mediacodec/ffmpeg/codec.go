// Package ffmpeg implements mediacodec.Codec on top of an ffmpeg child
// process. Raw frames are written to the process's stdin and the Annex B
// elementary stream it prints on stdout is cut back into access units,
// so a host without an encoder driver still runs the full session path.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

// DefaultInputBuffers is the number of input slots a codec exposes.
const DefaultInputBuffers = 4

const outputQueue = 32

var commandContext = exec.CommandContext

var errStreamEnded = errors.New("ffmpeg: output stream ended")

type state int

const (
	stateUninitialized state = iota
	stateConfigured
	stateRunning
	stateStopped
	stateReleased
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateConfigured:
		return "configured"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	case stateReleased:
		return "released"
	}
	return "unknown"
}

// Option configures a Codec.
type Option func(*Codec)

// WithBinary sets the ffmpeg executable. Defaults to "ffmpeg" on PATH.
func WithBinary(path string) Option {
	return func(c *Codec) { c.binary = path }
}

// WithEncoder overrides the ffmpeg video encoder name, e.g. "h264_nvenc".
func WithEncoder(name string) Option {
	return func(c *Codec) { c.encoder = name }
}

// WithInputBuffers sets the number of input slots.
func WithInputBuffers(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.numInputs = n
		}
	}
}

// WithExtraArgs appends arguments after the generated encoder options.
func WithExtraArgs(args ...string) Option {
	return func(c *Codec) { c.extra = append(c.extra, args...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.log = l }
}

type job struct {
	index  int
	offset int
	size   int
	eos    bool
}

type output struct {
	code int
	data []byte
	info mediacodec.BufferInfo
}

// Codec is a software stand-in for a hardware encoder. Methods may be
// called from different goroutines but the buffer-queue protocol assumes
// one producer and one consumer.
type Codec struct {
	binary    string
	encoder   string
	extra     []string
	numInputs int
	log       *slog.Logger

	mu        sync.Mutex
	state     state
	codec     media.CodecID
	args      []string
	frameSize int
	inputs    [][]byte
	queued    map[int]bool
	eosQueued bool
	held      map[int][]byte
	nextOut   int
	pending   []int64
	lastPTS   int64

	free    chan int
	jobs    chan job
	outputs chan output
	done    chan struct{}
	cancel  context.CancelFunc

	failed   atomic.Bool
	stopping atomic.Bool
	stderr   *tailBuffer
}

var _ mediacodec.Codec = (*Codec)(nil)

// New creates an unconfigured codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		binary:    "ffmpeg",
		numInputs: DefaultInputBuffers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "ffmpeg")
	return c
}

// Args returns the command line built by Configure.
func (c *Codec) Args() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.args...)
}

// Configure validates f and prepares the ffmpeg command line.
func (c *Codec) Configure(f mediacodec.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateUninitialized && c.state != stateStopped {
		return fmt.Errorf("ffmpeg: configure in state %s", c.state)
	}

	var codec media.CodecID
	switch f.MIME {
	case media.CodecAVC.MIME():
		codec = media.CodecAVC
	case media.CodecHEVC.MIME():
		codec = media.CodecHEVC
	default:
		return fmt.Errorf("ffmpeg: unsupported mime %q", f.MIME)
	}
	var pf media.PixelFormat
	switch f.ColorFormat {
	case mediacodec.ColorFormatYUV420Planar:
		pf = media.PixelFormatI420
	case mediacodec.ColorFormatYUV420SemiPlanar:
		pf = media.PixelFormatNV12
	default:
		return fmt.Errorf("ffmpeg: unsupported color format %d", int(f.ColorFormat))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("ffmpeg: invalid dimensions %dx%d", f.Width, f.Height)
	}
	if f.FrameRate <= 0 {
		return fmt.Errorf("ffmpeg: invalid frame rate %d", f.FrameRate)
	}

	encoder := c.encoder
	if encoder == "" {
		encoder = defaultEncoder(codec)
	}
	c.codec = codec
	c.frameSize = media.FrameSize(pf, f.Width, f.Height)
	c.args = buildArgs(f, codec, encoder, c.extra)
	c.state = stateConfigured
	c.log.Debug("configured", "encoder", encoder, "args", c.args)
	return nil
}

// Start launches the ffmpeg process.
func (c *Codec) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConfigured {
		return fmt.Errorf("ffmpeg: start in state %s", c.state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := commandContext(ctx, c.binary, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	c.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = c.stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg: start %s: %w", c.binary, err)
	}

	c.inputs = make([][]byte, c.numInputs)
	c.free = make(chan int, c.numInputs)
	for i := range c.inputs {
		c.inputs[i] = make([]byte, c.frameSize)
		c.free <- i
	}
	c.queued = make(map[int]bool)
	c.jobs = make(chan job, c.numInputs)
	c.outputs = make(chan output, outputQueue)
	c.held = make(map[int][]byte)
	c.done = make(chan struct{})
	c.cancel = cancel
	c.nextOut = 0
	c.pending = nil
	c.lastPTS = 0
	c.eosQueued = false
	c.failed.Store(false)
	c.stopping.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx, stdin) })
	g.Go(func() error { return c.readLoop(gctx, stdout) })
	go c.supervise(ctx, g, cmd)

	c.state = stateRunning
	c.log.Info("encoder process started", "pid", cmd.Process.Pid)
	return nil
}

// supervise waits for the process and its pipe goroutines. A clean exit
// is reported as an end-of-stream output buffer; anything else marks the
// codec failed.
func (c *Codec) supervise(ctx context.Context, g *errgroup.Group, cmd *exec.Cmd) {
	defer close(c.done)
	gerr := g.Wait()
	if errors.Is(gerr, errStreamEnded) {
		gerr = nil
	}
	werr := cmd.Wait()
	if c.stopping.Load() {
		return
	}
	if err := errors.Join(gerr, werr); err != nil {
		c.failed.Store(true)
		c.log.Error("encoder process failed", "error", err, "stderr", c.stderr.String())
		return
	}
	c.mu.Lock()
	pts := c.lastPTS
	c.mu.Unlock()
	eos := output{info: mediacodec.BufferInfo{PTS: pts, Flags: mediacodec.FlagEndOfStream}}
	select {
	case c.outputs <- eos:
	case <-ctx.Done():
	}
}

func (c *Codec) writeLoop(ctx context.Context, stdin io.WriteCloser) error {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-c.jobs:
			if j.size > 0 {
				if _, err := stdin.Write(c.inputs[j.index][j.offset : j.offset+j.size]); err != nil {
					return fmt.Errorf("ffmpeg: write frame: %w", err)
				}
			}
			c.mu.Lock()
			delete(c.queued, j.index)
			c.mu.Unlock()
			c.free <- j.index
			if j.eos {
				if err := stdin.Close(); err != nil {
					return fmt.Errorf("ffmpeg: close stdin: %w", err)
				}
				return nil
			}
		}
	}
}

func (c *Codec) readLoop(ctx context.Context, stdout io.Reader) error {
	var configSent bool
	sp := &splitter{codec: c.codec}
	sp.emit = func(au accessUnit) error {
		if !configSent {
			var err error
			if au, err = c.emitConfig(ctx, au); err != nil {
				return err
			}
			configSent = true
		}
		if !au.hasVCL(c.codec) {
			return nil
		}
		var flags mediacodec.BufferFlags
		if au.keyframe(c.codec) {
			flags |= mediacodec.FlagKeyFrame
		}
		data := au.annexB()
		return c.send(ctx, output{
			data: data,
			info: mediacodec.BufferInfo{Size: len(data), PTS: c.popPTS(), Flags: flags},
		})
	}

	buf := make([]byte, 64<<10)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if werr := sp.write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("ffmpeg: read stream: %w", err)
		}
	}
	if err := sp.flush(); err != nil {
		return err
	}
	return errStreamEnded
}

// emitConfig sends the parameter sets at the head of the first access
// unit as a format change followed by a codec-config buffer, and returns
// the access unit without them.
func (c *Codec) emitConfig(ctx context.Context, au accessUnit) (accessUnit, error) {
	var params, rest [][]byte
	for _, n := range au.nals {
		if h26x.IsParameterSet(c.codec, n) {
			params = append(params, n)
		} else {
			rest = append(rest, n)
		}
	}
	if len(params) == 0 {
		return au, nil
	}
	if err := c.send(ctx, output{code: mediacodec.InfoOutputFormatChanged}); err != nil {
		return au, err
	}
	data := h26x.AppendAnnexB(nil, params...)
	cfg := output{
		data: data,
		info: mediacodec.BufferInfo{Size: len(data), Flags: mediacodec.FlagCodecConfig},
	}
	if err := c.send(ctx, cfg); err != nil {
		return au, err
	}
	c.log.Debug("codec config emitted", "size", len(data))
	return accessUnit{nals: rest}, nil
}

func (c *Codec) send(ctx context.Context, o output) error {
	select {
	case c.outputs <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Codec) popPTS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.lastPTS = c.pending[0]
		c.pending = c.pending[1:]
	}
	return c.lastPTS
}

// Flush discards encoded output that has not been dequeued yet. Frames
// already written to the process still come out afterwards.
func (c *Codec) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return fmt.Errorf("ffmpeg: flush in state %s", c.state)
	}
discard:
	for {
		select {
		case <-c.outputs:
		default:
			break discard
		}
	}
	clear(c.held)
	return nil
}

// Stop kills the process and waits for its goroutines.
func (c *Codec) Stop() error {
	c.mu.Lock()
	if c.state != stateRunning {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("ffmpeg: stop in state %s", st)
	}
	c.state = stateStopped
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.stopping.Store(true)
	cancel()
	<-done
	c.log.Info("encoder process stopped")
	return nil
}

// Release frees the buffers. A running codec is stopped first.
func (c *Codec) Release() error {
	c.mu.Lock()
	running := c.state == stateRunning
	c.mu.Unlock()
	if running {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs, c.held, c.queued, c.pending = nil, nil, nil, nil
	c.state = stateReleased
	return nil
}

// channels returns the live queues, or ok=false when the codec is not
// running.
func (c *Codec) channels() (free chan int, outputs chan output, done chan struct{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return nil, nil, nil, false
	}
	return c.free, c.outputs, c.done, true
}

// DequeueInputBuffer returns a free input slot index or a status code.
func (c *Codec) DequeueInputBuffer(timeout time.Duration) int {
	free, _, done, ok := c.channels()
	if !ok {
		return mediacodec.ErrorInvalidOp
	}
	if c.failed.Load() {
		return mediacodec.ErrorIO
	}
	select {
	case i := <-free:
		return c.claim(i)
	default:
	}
	if timeout == 0 {
		return mediacodec.InfoTryAgainLater
	}
	expired, stop := deadline(timeout)
	defer stop()
	select {
	case i := <-free:
		return c.claim(i)
	case <-done:
		if c.failed.Load() {
			return mediacodec.ErrorIO
		}
		return mediacodec.InfoTryAgainLater
	case <-expired:
		return mediacodec.InfoTryAgainLater
	}
}

func (c *Codec) claim(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued[i] = true
	return i
}

// InputBuffer returns the writable memory of a dequeued input slot.
func (c *Codec) InputBuffer(index int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return nil, fmt.Errorf("ffmpeg: input buffer in state %s", c.state)
	}
	if !c.queued[index] {
		return nil, fmt.Errorf("ffmpeg: input buffer %d not dequeued", index)
	}
	return c.inputs[index], nil
}

// QueueInputBuffer hands a filled slot to the writer. Only whole frames
// are accepted; an empty queue without flags returns the slot unused.
func (c *Codec) QueueInputBuffer(index, offset, size int, ptsUs int64, flags mediacodec.BufferFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return fmt.Errorf("ffmpeg: queue input in state %s", c.state)
	}
	if !c.queued[index] {
		return fmt.Errorf("ffmpeg: input buffer %d not dequeued", index)
	}
	eos := flags.Has(mediacodec.FlagEndOfStream)
	if c.eosQueued {
		return fmt.Errorf("ffmpeg: queue input after end of stream")
	}
	if size == 0 && !eos {
		delete(c.queued, index)
		c.free <- index
		return nil
	}
	if size != 0 && (size != c.frameSize || offset < 0 || offset+size > len(c.inputs[index])) {
		delete(c.queued, index)
		c.free <- index
		return fmt.Errorf("ffmpeg: input of %d bytes at offset %d, frame is %d bytes", size, offset, c.frameSize)
	}
	if size > 0 {
		c.pending = append(c.pending, ptsUs)
	}
	c.eosQueued = eos
	c.jobs <- job{index: index, offset: offset, size: size, eos: eos}
	return nil
}

// DequeueOutputBuffer returns the index of an encoded buffer, or a status
// code.
func (c *Codec) DequeueOutputBuffer(timeout time.Duration) (int, mediacodec.BufferInfo) {
	_, outputs, done, ok := c.channels()
	if !ok {
		return mediacodec.ErrorInvalidOp, mediacodec.BufferInfo{}
	}
	select {
	case o := <-outputs:
		return c.hold(o)
	default:
	}
	if c.failed.Load() {
		return mediacodec.ErrorIO, mediacodec.BufferInfo{}
	}
	if timeout == 0 {
		return mediacodec.InfoTryAgainLater, mediacodec.BufferInfo{}
	}
	expired, stop := deadline(timeout)
	defer stop()
	select {
	case o := <-outputs:
		return c.hold(o)
	case <-done:
		select {
		case o := <-outputs:
			return c.hold(o)
		default:
		}
		if c.failed.Load() {
			return mediacodec.ErrorIO, mediacodec.BufferInfo{}
		}
		return mediacodec.InfoTryAgainLater, mediacodec.BufferInfo{}
	case <-expired:
		return mediacodec.InfoTryAgainLater, mediacodec.BufferInfo{}
	}
}

func (c *Codec) hold(o output) (int, mediacodec.BufferInfo) {
	if o.code != 0 {
		return o.code, mediacodec.BufferInfo{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.nextOut
	c.nextOut++
	c.held[i] = o.data
	return i, o.info
}

// OutputBuffer returns the bytes of a dequeued output buffer.
func (c *Codec) OutputBuffer(index int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.held[index]
	if !ok {
		return nil, fmt.Errorf("ffmpeg: output buffer %d not dequeued", index)
	}
	return data, nil
}

// ReleaseOutputBuffer returns an output buffer.
func (c *Codec) ReleaseOutputBuffer(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[index]; !ok {
		return fmt.Errorf("ffmpeg: output buffer %d not dequeued", index)
	}
	delete(c.held, index)
	return nil
}

// deadline returns a channel that fires after timeout, or never when
// timeout is negative.
func deadline(timeout time.Duration) (<-chan time.Time, func()) {
	if timeout < 0 {
		return nil, func() {}
	}
	t := time.NewTimer(timeout)
	return t.C, func() { t.Stop() }
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
