package encoder

import (
	"sync/atomic"
	"time"
)

// Drop reasons passed to Recorder.FrameDropped.
const (
	DropInvalid    = "invalid"
	DropConversion = "conversion"
	DropTimeout    = "timeout"
)

// Recorder receives per-event telemetry from a session. Implementations
// must be cheap; they are called on the encoding path.
type Recorder interface {
	FrameSubmitted(latency time.Duration)
	FrameDropped(reason string)
	PacketWritten(size int, keyframe bool)
	DrainRetry()
	FatalError()
	ExtradataCaptured()
}

type nopRecorder struct{}

func (nopRecorder) FrameSubmitted(time.Duration) {}
func (nopRecorder) FrameDropped(string)          {}
func (nopRecorder) PacketWritten(int, bool)      {}
func (nopRecorder) DrainRetry()                  {}
func (nopRecorder) FatalError()                  {}
func (nopRecorder) ExtradataCaptured()           {}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	FramesSubmitted int64 `json:"framesSubmitted"`
	FramesDropped   int64 `json:"framesDropped"`
	PacketsDrained  int64 `json:"packetsDrained"`
	PacketsWritten  int64 `json:"packetsWritten"`
	BytesWritten    int64 `json:"bytesWritten"`
	Keyframes       int64 `json:"keyframes"`
	DrainRetries    int64 `json:"drainRetries"`
	LastPTS         int64 `json:"lastPts"`
}

type counters struct {
	framesSubmitted atomic.Int64
	framesDropped   atomic.Int64
	packetsDrained  atomic.Int64
	packetsWritten  atomic.Int64
	bytesWritten    atomic.Int64
	keyframes       atomic.Int64
	drainRetries    atomic.Int64
	lastPTS         atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesSubmitted: c.framesSubmitted.Load(),
		FramesDropped:   c.framesDropped.Load(),
		PacketsDrained:  c.packetsDrained.Load(),
		PacketsWritten:  c.packetsWritten.Load(),
		BytesWritten:    c.bytesWritten.Load(),
		Keyframes:       c.keyframes.Load(),
		DrainRetries:    c.drainRetries.Load(),
		LastPTS:         c.lastPTS.Load(),
	}
}
