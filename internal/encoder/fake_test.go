package encoder

import (
	"errors"
	"time"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

type queuedInput struct {
	index int
	data  []byte
	pts   int64
	flags mediacodec.BufferFlags
}

type scriptedOutput struct {
	code int
	info mediacodec.BufferInfo
	data []byte
}

// fakeCodec replays scripted dequeue results and records every call.
type fakeCodec struct {
	configureErr error
	startErr     error
	flushErr     error

	// rejectAfterEOS makes QueueInputBuffer fail once end of stream has
	// been queued, as a real codec does.
	rejectAfterEOS bool

	format   *mediacodec.Format
	started  bool
	flushes  int
	stops    int
	releases int

	inputSize  int
	inputCodes []int
	inputs     map[int][]byte
	queued     []queuedInput

	outputs     []scriptedOutput
	outBufs     map[int][]byte
	releasedOut []int
}

var _ mediacodec.Codec = (*fakeCodec)(nil)

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		inputSize: 1 << 20,
		inputs:    make(map[int][]byte),
		outBufs:   make(map[int][]byte),
	}
}

func (c *fakeCodec) Configure(f mediacodec.Format) error {
	if c.configureErr != nil {
		return c.configureErr
	}
	c.format = &f
	return nil
}

func (c *fakeCodec) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *fakeCodec) Flush() error {
	c.flushes++
	return c.flushErr
}

func (c *fakeCodec) Stop() error    { c.stops++; return nil }
func (c *fakeCodec) Release() error { c.releases++; return nil }

func (c *fakeCodec) DequeueInputBuffer(time.Duration) int {
	idx := len(c.queued)
	if len(c.inputCodes) > 0 {
		idx, c.inputCodes = c.inputCodes[0], c.inputCodes[1:]
	}
	if idx >= 0 {
		c.inputs[idx] = make([]byte, c.inputSize)
	}
	return idx
}

func (c *fakeCodec) InputBuffer(index int) ([]byte, error) {
	buf, ok := c.inputs[index]
	if !ok {
		return nil, errors.New("no such input buffer")
	}
	return buf, nil
}

func (c *fakeCodec) QueueInputBuffer(index, offset, size int, pts int64, flags mediacodec.BufferFlags) error {
	if c.rejectAfterEOS && c.eosQueued() {
		return errors.New("queue input after end of stream")
	}
	data := append([]byte(nil), c.inputs[index][offset:offset+size]...)
	c.queued = append(c.queued, queuedInput{index: index, data: data, pts: pts, flags: flags})
	return nil
}

func (c *fakeCodec) DequeueOutputBuffer(time.Duration) (int, mediacodec.BufferInfo) {
	if len(c.outputs) == 0 {
		return mediacodec.InfoTryAgainLater, mediacodec.BufferInfo{}
	}
	out := c.outputs[0]
	c.outputs = c.outputs[1:]
	if out.code >= 0 {
		c.outBufs[out.code] = out.data
		if out.info.Size == 0 && len(out.data) > 0 {
			out.info.Size = len(out.data)
		}
	}
	return out.code, out.info
}

func (c *fakeCodec) OutputBuffer(index int) ([]byte, error) {
	buf, ok := c.outBufs[index]
	if !ok {
		return nil, errors.New("no such output buffer")
	}
	return buf, nil
}

func (c *fakeCodec) ReleaseOutputBuffer(index int) error {
	c.releasedOut = append(c.releasedOut, index)
	delete(c.outBufs, index)
	return nil
}

func (c *fakeCodec) eosQueued() bool {
	for _, q := range c.queued {
		if q.flags.Has(mediacodec.FlagEndOfStream) {
			return true
		}
	}
	return false
}

// push scripts an output buffer.
func (c *fakeCodec) push(index int, data []byte, pts int64, flags mediacodec.BufferFlags) {
	c.outputs = append(c.outputs, scriptedOutput{
		code: index,
		data: data,
		info: mediacodec.BufferInfo{Size: len(data), PTS: pts, Flags: flags},
	})
}

// pushCode scripts a bare status code.
func (c *fakeCodec) pushCode(code int) {
	c.outputs = append(c.outputs, scriptedOutput{code: code})
}

type fakeMux struct {
	timeBase    media.Rational
	createErr   error
	writeErr    error
	streams     int
	packets     []*media.EncodedPacket
	descriptors []media.StreamDescriptor
}

var (
	_ Multiplexer    = (*fakeMux)(nil)
	_ DescriptorSink = (*fakeMux)(nil)
)

func (m *fakeMux) CreateStream(media.CodecID) (media.StreamHandle, error) {
	if m.createErr != nil {
		return media.StreamHandle{}, m.createErr
	}
	m.streams++
	return media.StreamHandle{Index: m.streams - 1, TimeBase: m.timeBase}, nil
}

func (m *fakeMux) Write(pkt *media.EncodedPacket) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.packets = append(m.packets, pkt)
	return nil
}

func (m *fakeMux) SetDescriptor(d media.StreamDescriptor) {
	m.descriptors = append(m.descriptors, d)
}

type countingRecorder struct {
	submitted, written, retries, fatal, extradata int
	dropped                                       map[string]int
}

func (r *countingRecorder) FrameSubmitted(time.Duration) { r.submitted++ }
func (r *countingRecorder) FrameDropped(reason string) {
	if r.dropped == nil {
		r.dropped = make(map[string]int)
	}
	r.dropped[reason]++
}
func (r *countingRecorder) PacketWritten(int, bool) { r.written++ }
func (r *countingRecorder) DrainRetry()             { r.retries++ }
func (r *countingRecorder) FatalError()             { r.fatal++ }
func (r *countingRecorder) ExtradataCaptured()      { r.extradata++ }
