package media

import "fmt"

// CodecID is the closed set of output codecs.
type CodecID int

const (
	CodecAVC CodecID = iota + 1
	CodecHEVC
)

// ParseCodec maps "h264"/"avc" and "h265"/"hevc" to a CodecID.
func ParseCodec(s string) (CodecID, error) {
	switch s {
	case "h264", "avc":
		return CodecAVC, nil
	case "h265", "hevc":
		return CodecHEVC, nil
	}
	return 0, fmt.Errorf("media: unknown codec %q", s)
}

func (c CodecID) String() string {
	switch c {
	case CodecAVC:
		return "h264"
	case CodecHEVC:
		return "h265"
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// MIME returns the hardware codec MIME type.
func (c CodecID) MIME() string {
	switch c {
	case CodecAVC:
		return "video/avc"
	case CodecHEVC:
		return "video/hevc"
	}
	return ""
}

// StreamType returns the ISO/IEC 13818-1 stream_type used in a PMT.
func (c CodecID) StreamType() byte {
	switch c {
	case CodecAVC:
		return 0x1B
	case CodecHEVC:
		return 0x24
	}
	return 0
}

// StreamHandle is what a multiplexer returns when a stream is registered:
// the index packets must carry and the time base their timestamps must use.
type StreamHandle struct {
	Index    int
	TimeBase Rational
}

// StreamDescriptor is the container-facing description of the encoded
// stream. Extradata holds the codec configuration (parameter sets in
// Annex B form) and is written at most once per session.
type StreamDescriptor struct {
	Codec       CodecID
	Width       int
	Height      int
	Bitrate     int
	Profile     int
	Level       int
	TimeBase    Rational
	Extradata   []byte
	CodecString string
}

// ExtradataSize returns len(Extradata).
func (d StreamDescriptor) ExtradataSize() int { return len(d.Extradata) }
