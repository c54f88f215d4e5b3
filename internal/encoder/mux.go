package encoder

import "github.com/zsiec/hwenc/internal/media"

// Multiplexer receives the encoded stream. A session borrows it: the
// multiplexer must outlive every session writing to it, and the session
// never closes it.
type Multiplexer interface {
	// CreateStream registers a video stream and returns its index and the
	// time base packet timestamps must be expressed in.
	CreateStream(codec media.CodecID) (media.StreamHandle, error)
	Write(pkt *media.EncodedPacket) error
}

// DescriptorSink is implemented by multiplexers that want the stream
// descriptor once codec configuration has been captured.
type DescriptorSink interface {
	SetDescriptor(d media.StreamDescriptor)
}
