package media

// MediaType distinguishes the payload kind of a raw frame. Sessions only
// accept video.
type MediaType int

const (
	MediaTypeVideo MediaType = iota
	MediaTypeAudio
)

func (m MediaType) String() string {
	if m == MediaTypeAudio {
		return "audio"
	}
	return "video"
}

// RawFrame is one uncompressed picture supplied by the caller. The caller
// owns Data; a session reads it synchronously during Submit and keeps no
// reference afterwards.
//
// A Length of zero marks end of stream. PTS is in milliseconds; zero or a
// negative value means the caller has no timestamp and the session
// synthesizes one.
type RawFrame struct {
	Type   MediaType
	Format PixelFormat
	Width  int
	Height int
	Data   []byte
	Length int
	PTS    int64
}

// Payload returns the first Length bytes of Data.
func (f *RawFrame) Payload() []byte {
	if f.Length > len(f.Data) {
		return f.Data
	}
	return f.Data[:f.Length]
}

// EncodedPacket is one compressed access unit ready for a multiplexer.
// PTS, DTS and Duration are expressed in the time base of the stream the
// packet belongs to. DTS always equals PTS because the encoder is
// configured without B-frames.
type EncodedPacket struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	Keyframe    bool
	CodecConfig bool
}

// Size returns the payload length in bytes.
func (p *EncodedPacket) Size() int { return len(p.Data) }
