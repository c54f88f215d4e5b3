package mpegts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

// PCRDelay is how far presentation timestamps are placed ahead of the
// program clock, in 90 kHz ticks.
const PCRDelay = 63000

// ErrNoStream is returned by Write before CreateStream.
var ErrNoStream = errors.New("mpegts: no stream registered")

var (
	avcAUD  = []byte{0x09, 0xF0}
	hevcAUD = []byte{0x46, 0x01, 0x50}
)

// MuxerStats is a snapshot of what a Muxer has written.
type MuxerStats struct {
	Packets   int64 `json:"packets"`
	TSPackets int64 `json:"tsPackets"`
	Bytes     int64 `json:"bytes"`
	Keyframes int64 `json:"keyframes"`
}

// Muxer writes one video stream as a single-program transport stream. It
// implements the encoder's Multiplexer and DescriptorSink.
type Muxer struct {
	w   io.Writer
	log *slog.Logger

	mu         sync.Mutex
	codec      media.CodecID
	registered bool
	extradata  []byte
	descriptor media.StreamDescriptor
	cc         map[uint16]*uint8
	buf        []byte
	stats      MuxerStats
}

// NewMuxer creates a muxer writing to w.
func NewMuxer(w io.Writer, log *slog.Logger) *Muxer {
	if log == nil {
		log = slog.Default()
	}
	return &Muxer{
		w:   w,
		log: log.With("component", "mpegts-muxer"),
		cc:  map[uint16]*uint8{pidPAT: new(uint8), PMTPID: new(uint8), VideoPID: new(uint8)},
	}
}

// CreateStream registers the video stream. Only one stream is supported.
func (m *Muxer) CreateStream(codec media.CodecID) (media.StreamHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if codec.StreamType() == 0 {
		return media.StreamHandle{}, fmt.Errorf("mpegts: unsupported codec %s", codec)
	}
	if m.registered && m.codec != codec {
		return media.StreamHandle{}, fmt.Errorf("mpegts: stream already registered as %s", m.codec)
	}
	m.codec = codec
	m.registered = true
	m.log.Info("stream registered", "codec", codec, "pid", VideoPID)
	return media.StreamHandle{Index: 0, TimeBase: media.MPEGClock}, nil
}

// SetDescriptor records the codec configuration so it can be repeated in
// front of every keyframe.
func (m *Muxer) SetDescriptor(d media.StreamDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptor = d
	m.extradata = bytes.Clone(d.Extradata)
	m.log.Info("descriptor set",
		"codec", d.CodecString,
		"size", fmt.Sprintf("%dx%d", d.Width, d.Height),
		"extradata", len(d.Extradata),
	)
}

// Descriptor returns the last descriptor passed to SetDescriptor.
func (m *Muxer) Descriptor() media.StreamDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descriptor
}

// Write muxes one access unit. PTS and DTS are in 90 kHz ticks. Codec
// configuration packets are kept as extradata instead of being written.
func (m *Muxer) Write(pkt *media.EncodedPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.registered {
		return ErrNoStream
	}
	if pkt.CodecConfig {
		if m.extradata == nil {
			m.extradata = bytes.Clone(pkt.Data)
		}
		return nil
	}

	out := m.buf[:0]
	if pkt.Keyframe || m.stats.Packets == 0 {
		out = packetize(out, psiPayload(patSection(PMTPID)), pidPAT, m.cc[pidPAT], adaptation{pcr: -1})
		out = packetize(out, psiPayload(pmtSection(VideoPID, m.codec.StreamType())), PMTPID, m.cc[PMTPID], adaptation{pcr: -1})
	}

	pts, dts := pkt.PTS+PCRDelay, pkt.DTS+PCRDelay
	pes := appendPESHeader(nil, pts, dts)
	pes = m.appendAccessUnit(pes, pkt)

	af := adaptation{pcr: -1, randomAccess: pkt.Keyframe}
	if pkt.Keyframe || m.stats.Packets == 0 {
		af.pcr = pkt.DTS * 300
	}
	out = packetize(out, pes, VideoPID, m.cc[VideoPID], af)
	m.buf = out

	if _, err := m.w.Write(out); err != nil {
		return fmt.Errorf("mpegts: write: %w", err)
	}
	m.stats.Packets++
	m.stats.TSPackets += int64(len(out) / PacketSize)
	m.stats.Bytes += int64(len(out))
	if pkt.Keyframe {
		m.stats.Keyframes++
	}
	return nil
}

// appendAccessUnit writes an access unit delimiter, then the parameter
// sets ahead of keyframes that lack them, then the payload.
func (m *Muxer) appendAccessUnit(dst []byte, pkt *media.EncodedPacket) []byte {
	nals := h26x.Split(pkt.Data)
	aud := avcAUD
	if m.codec == media.CodecHEVC {
		aud = hevcAUD
	}
	if len(nals) == 0 || h26x.NALType(m.codec, nals[0]) != h26x.NALType(m.codec, aud) {
		dst = h26x.AppendAnnexB(dst, aud)
	}
	if pkt.Keyframe && len(m.extradata) > 0 && !hasParameterSets(m.codec, nals) {
		dst = append(dst, m.extradata...)
	}
	return append(dst, pkt.Data...)
}

func hasParameterSets(codec media.CodecID, nals [][]byte) bool {
	for _, n := range nals {
		if h26x.IsParameterSet(codec, n) {
			return true
		}
	}
	return false
}

// Stats returns counters for everything written so far.
func (m *Muxer) Stats() MuxerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
