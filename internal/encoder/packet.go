package encoder

import (
	"bytes"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

// buildPacket copies an output buffer into a packet. The timestamp is the
// later of the buffer timestamp and the submit cursor, snapped to the
// frame grid and then expressed in the multiplexer's time base.
func (s *Session) buildPacket(data []byte, info mediacodec.BufferInfo) *media.EncodedPacket {
	pts := max(info.PTS, s.tracker.Cursor())
	frames := media.Rescale(pts, media.Microseconds, s.frameBase)
	ts := media.Rescale(frames, s.frameBase, s.handle.TimeBase)

	return &media.EncodedPacket{
		StreamIndex: s.handle.Index,
		Data:        bytes.Clone(data),
		PTS:         ts,
		DTS:         ts,
		Duration:    media.Rescale(1, s.frameBase, s.handle.TimeBase),
		Keyframe:    info.Flags.Has(mediacodec.FlagKeyFrame),
	}
}
