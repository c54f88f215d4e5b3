package mpegts

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

// StreamSummary describes one elementary stream of a probed file.
type StreamSummary struct {
	PID         uint16        `json:"pid"`
	StreamType  byte          `json:"streamType"`
	Codec       string        `json:"codec,omitempty"`
	CodecString string        `json:"codecString,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	Units       int64         `json:"units"`
	Keyframes   int64         `json:"keyframes"`
	Bytes       int64         `json:"bytes"`
	FirstPTS    int64         `json:"firstPts"`
	LastPTS     int64         `json:"lastPts"`
	Duration    time.Duration `json:"duration"`
	Backwards   int64         `json:"backwardsTimestamps"`
}

// Summary is the result of Summarize.
type Summary struct {
	Streams []StreamSummary `json:"streams"`
	Stats   ReaderStats     `json:"stats"`
}

func codecForStreamType(st byte) media.CodecID {
	for _, c := range []media.CodecID{media.CodecAVC, media.CodecHEVC} {
		if c.StreamType() == st {
			return c
		}
	}
	return 0
}

// Summarize reads a whole transport stream and reports per-stream
// counts, timestamps and, for H.264 and H.265, the codec parameters found
// in the first sequence parameter set.
func Summarize(ctx context.Context, r io.Reader) (Summary, error) {
	rd := NewReader(ctx, r)
	byPID := make(map[uint16]*StreamSummary)
	for {
		u, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, err
		}
		s := byPID[u.PID]
		if s == nil {
			s = &StreamSummary{PID: u.PID, StreamType: u.StreamType, FirstPTS: -1, LastPTS: -1}
			byPID[u.PID] = s
		}
		s.Units++
		s.Bytes += int64(len(u.Data))
		if u.PTS >= 0 {
			if s.FirstPTS < 0 {
				s.FirstPTS = u.PTS
			}
			if s.LastPTS >= 0 && u.PTS < s.LastPTS {
				s.Backwards++
			}
			s.LastPTS = u.PTS
		}
		inspectVideo(s, u)
	}

	sum := Summary{Stats: rd.Stats()}
	for _, s := range byPID {
		if s.FirstPTS >= 0 && s.LastPTS > s.FirstPTS {
			s.Duration = time.Duration(media.Rescale(s.LastPTS-s.FirstPTS, media.MPEGClock, media.Microseconds)) * time.Microsecond
		}
		sum.Streams = append(sum.Streams, *s)
	}
	sort.Slice(sum.Streams, func(i, j int) bool { return sum.Streams[i].PID < sum.Streams[j].PID })
	return sum, nil
}

func inspectVideo(s *StreamSummary, u *Unit) {
	codec := codecForStreamType(u.StreamType)
	if codec == 0 {
		return
	}
	s.Codec = codec.String()
	key := false
	for _, nal := range h26x.Split(u.Data) {
		if h26x.IsKeyframe(codec, nal) {
			key = true
			break
		}
	}
	if key {
		s.Keyframes++
	}
	if s.CodecString != "" {
		return
	}
	if cs, err := h26x.CodecString(codec, u.Data); err == nil {
		s.CodecString = cs
	}
	ps := h26x.ExtractParameterSets(codec, u.Data)
	if len(ps.SPS) == 0 {
		return
	}
	switch codec {
	case media.CodecAVC:
		if sps, err := h26x.ParseAVCSPS(ps.SPS); err == nil {
			s.Width, s.Height = sps.Width, sps.Height
		}
	case media.CodecHEVC:
		if sps, err := h26x.ParseHEVCSPS(ps.SPS); err == nil {
			s.Width, s.Height = sps.Width, sps.Height
		}
	}
}
