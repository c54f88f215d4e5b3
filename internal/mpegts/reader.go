package mpegts

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Unit is one reassembled PES packet from an elementary stream. PTS and
// DTS are in 90 kHz ticks, or -1 when the PES header carried none.
type Unit struct {
	PID          uint16
	StreamType   byte
	PTS          int64
	DTS          int64
	RandomAccess bool
	PCR          int64
	Data         []byte
}

// ReaderStats counts transport level events seen by a Reader.
type ReaderStats struct {
	Packets        int64 `json:"packets"`
	SkippedPackets int64 `json:"skippedPackets"`
	CCErrors       int64 `json:"ccErrors"`
	PSIErrors      int64 `json:"psiErrors"`
}

type pesBuffer struct {
	data         []byte
	randomAccess bool
	pcr          int64
}

// Reader demultiplexes a transport stream into PES units. It follows the
// PAT to every PMT and reassembles the elementary streams those list.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	buf     [PacketSize]byte
	pmtPIDs map[uint16]bool
	streams map[uint16]byte
	pending map[uint16]*pesBuffer
	lastCC  map[uint16]uint8
	out     []*Unit
	eof     bool
	stats   ReaderStats
}

// NewReader creates a reader. Next returns ctx.Err() once ctx is done.
func NewReader(ctx context.Context, r io.Reader) *Reader {
	return &Reader{
		ctx:     ctx,
		r:       r,
		pmtPIDs: make(map[uint16]bool),
		streams: make(map[uint16]byte),
		pending: make(map[uint16]*pesBuffer),
		lastCC:  make(map[uint16]uint8),
	}
}

// Streams returns the elementary PIDs discovered so far and their stream
// types.
func (r *Reader) Streams() map[uint16]byte {
	m := make(map[uint16]byte, len(r.streams))
	for k, v := range r.streams {
		m[k] = v
	}
	return m
}

// Stats returns transport counters.
func (r *Reader) Stats() ReaderStats { return r.stats }

// Next returns the next complete unit, or io.EOF after the last one.
// Corrupt packets and sections are counted and skipped.
func (r *Reader) Next() (*Unit, error) {
	for {
		if len(r.out) > 0 {
			u := r.out[0]
			r.out = r.out[1:]
			return u, nil
		}
		if r.eof {
			return nil, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.eof = true
				r.flushAll()
				continue
			}
			return nil, fmt.Errorf("mpegts: read: %w", err)
		}
		r.stats.Packets++
		h, payload, err := parsePacket(r.buf[:])
		if err != nil || h.tei {
			r.stats.SkippedPackets++
			continue
		}
		r.handle(h, payload)
	}
}

func (r *Reader) handle(h header, payload []byte) {
	switch {
	case h.pid == pidPAT:
		if !h.pusi {
			return
		}
		pids, err := parsePAT(payload)
		if err != nil {
			r.stats.PSIErrors++
			return
		}
		for _, pid := range pids {
			r.pmtPIDs[pid] = true
		}
	case r.pmtPIDs[h.pid]:
		if !h.pusi {
			return
		}
		streams, err := parsePMT(payload)
		if err != nil {
			r.stats.PSIErrors++
			return
		}
		for pid, st := range streams {
			r.streams[pid] = st
		}
	default:
		if _, ok := r.streams[h.pid]; ok {
			r.handlePES(h, payload)
		}
	}
}

func (r *Reader) handlePES(h header, payload []byte) {
	if h.hasPayload {
		last, seen := r.lastCC[h.pid]
		r.lastCC[h.pid] = h.cc
		if seen && !h.discontinuity && h.cc != (last+1)&0x0F {
			if h.cc == last {
				return
			}
			r.stats.CCErrors++
			if !h.pusi {
				delete(r.pending, h.pid)
				return
			}
		}
	}

	buf := r.pending[h.pid]
	if h.pusi {
		if buf != nil {
			r.emit(h.pid, buf)
		}
		buf = &pesBuffer{pcr: h.pcr, randomAccess: h.randomAccess}
		r.pending[h.pid] = buf
	}
	if buf != nil && h.hasPayload {
		buf.data = append(buf.data, payload...)
	}
}

func (r *Reader) emit(pid uint16, buf *pesBuffer) {
	p, err := parsePES(buf.data)
	if err != nil {
		r.stats.SkippedPackets++
		return
	}
	r.out = append(r.out, &Unit{
		PID:          pid,
		StreamType:   r.streams[pid],
		PTS:          p.pts,
		DTS:          p.dts,
		RandomAccess: buf.randomAccess,
		PCR:          buf.pcr,
		Data:         p.data,
	})
}

func (r *Reader) flushAll() {
	for pid, buf := range r.pending {
		r.emit(pid, buf)
		delete(r.pending, pid)
	}
}
