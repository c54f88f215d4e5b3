// Package mediacodec describes the asynchronous hardware encoder a session
// drives. The contract follows the Android MediaCodec buffer-queue model:
// the caller dequeues an empty input slot, fills and queues it, then polls
// for filled output buffers and releases each one after copying it out.
//
// Dequeue calls return raw integer status codes rather than errors. A
// non-negative code is a buffer index; negative codes are classified by
// Classify.
package mediacodec

import "time"

// Infinite makes a dequeue call block until a buffer or status is ready.
const Infinite time.Duration = -1

// ColorFormat is the input layout an encoder is configured for.
type ColorFormat int

const (
	ColorFormatYUV420Planar     ColorFormat = 19
	ColorFormatYUV420SemiPlanar ColorFormat = 21
)

func (c ColorFormat) String() string {
	switch c {
	case ColorFormatYUV420Planar:
		return "yuv420planar"
	case ColorFormatYUV420SemiPlanar:
		return "yuv420semiplanar"
	}
	return "unknown"
}

// BitrateMode selects the rate-control strategy.
type BitrateMode int

const (
	BitrateModeCQ  BitrateMode = 0
	BitrateModeVBR BitrateMode = 1
	BitrateModeCBR BitrateMode = 2
)

// Codec profile and level values, numbered as MediaCodecInfo.CodecProfileLevel.
const (
	AVCProfileHigh = 0x08
	AVCLevel31     = 0x200
	AVCLevel4      = 0x800

	HEVCProfileMain     = 0x01
	HEVCHighTierLevel31 = 0x200
	HEVCHighTierLevel4  = 0x800
)

// Format is the configuration handed to Codec.Configure.
type Format struct {
	MIME           string
	Width          int
	Height         int
	Bitrate        int
	MaxBitrate     int
	BitrateMode    BitrateMode
	FrameRate      int
	ColorFormat    ColorFormat
	IFrameInterval int // seconds
	Profile        int
	Level          int
}

// BufferFlags annotate queued input and dequeued output buffers.
type BufferFlags uint32

const (
	FlagKeyFrame    BufferFlags = 1
	FlagCodecConfig BufferFlags = 2
	FlagEndOfStream BufferFlags = 4
)

// Has reports whether every bit of x is set in f.
func (f BufferFlags) Has(x BufferFlags) bool { return f&x == x }

// BufferInfo describes a dequeued output buffer. PTS is in microseconds.
type BufferInfo struct {
	Offset int
	Size   int
	PTS    int64
	Flags  BufferFlags
}

// Codec is a configured hardware encoder instance.
//
// Configure, Start, Flush, Stop and Release return an error on failure.
// Dequeue calls block for at most timeout (or forever with Infinite) and
// return a status code.
type Codec interface {
	Configure(f Format) error
	Start() error
	Flush() error
	Stop() error
	Release() error

	DequeueInputBuffer(timeout time.Duration) int
	InputBuffer(index int) ([]byte, error)
	QueueInputBuffer(index, offset, size int, ptsUs int64, flags BufferFlags) error

	DequeueOutputBuffer(timeout time.Duration) (int, BufferInfo)
	OutputBuffer(index int) ([]byte, error)
	ReleaseOutputBuffer(index int) error
}
