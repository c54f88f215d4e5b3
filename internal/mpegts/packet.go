// Package mpegts writes and reads the single-program MPEG transport
// streams the encoder produces: one PAT, one PMT and one video elementary
// stream carried in PES packets on a 90 kHz clock.
package mpegts

import "fmt"

const (
	PacketSize = 188
	syncByte   = 0x47

	pidPAT = 0x0000
	// PMTPID and VideoPID are the fixed PIDs used by Muxer.
	PMTPID   = 0x1000
	VideoPID = 0x0100

	videoStreamID = 0xE0
)

// header is the parsed 4-byte transport packet header plus the few
// adaptation field bits the reader cares about.
type header struct {
	pid          uint16
	pusi         bool
	tei          bool
	cc           uint8
	hasAF        bool
	hasPayload   bool
	discontinuity bool
	randomAccess bool
	pcr          int64
}

// parsePacket splits a 188-byte packet into its header and payload. The
// payload aliases buf.
func parsePacket(buf []byte) (header, []byte, error) {
	var h header
	if len(buf) != PacketSize {
		return h, nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return h, nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}
	h.tei = buf[1]&0x80 != 0
	h.pusi = buf[1]&0x40 != 0
	h.pid = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	h.hasAF = buf[3]&0x20 != 0
	h.hasPayload = buf[3]&0x10 != 0
	h.cc = buf[3] & 0x0F
	h.pcr = -1

	off := 4
	if h.hasAF {
		afLen := int(buf[4])
		if afLen > 0 {
			flags := buf[5]
			h.discontinuity = flags&0x80 != 0
			h.randomAccess = flags&0x40 != 0
			if flags&0x10 != 0 && afLen >= 7 {
				b := buf[6:12]
				base := int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
				ext := int64(b[4]&0x01)<<8 | int64(b[5])
				h.pcr = base*300 + ext
			}
		}
		off += 1 + afLen
		if off > PacketSize {
			off = PacketSize
		}
	}
	if !h.hasPayload || off >= PacketSize {
		return h, nil, nil
	}
	return h, buf[off:], nil
}

// adaptation describes the optional fields written into the first packet
// of a PES packet.
type adaptation struct {
	randomAccess bool
	pcr          int64 // 27 MHz; negative for none
}

func (a adaptation) fields() []byte {
	var flags byte
	if a.randomAccess {
		flags |= 0x40
	}
	if a.pcr < 0 {
		if flags == 0 {
			return nil
		}
		return []byte{flags}
	}
	flags |= 0x10
	base := a.pcr / 300 & (1<<33 - 1)
	ext := a.pcr % 300
	return []byte{
		flags,
		byte(base >> 25),
		byte(base >> 17),
		byte(base >> 9),
		byte(base >> 1),
		byte(base<<7) | 0x7E | byte(ext>>8),
		byte(ext),
	}
}

// packetize splits payload into transport packets on pid. The first
// packet carries the unit start flag and the optional adaptation fields;
// the last one is padded with adaptation stuffing.
func packetize(dst, payload []byte, pid uint16, cc *uint8, af adaptation) []byte {
	first := true
	for first || len(payload) > 0 {
		var pkt [PacketSize]byte
		pkt[0] = syncByte
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
		}
		pkt[3] = 0x10 | *cc&0x0F
		*cc = (*cc + 1) & 0x0F

		var fields []byte
		if first {
			fields = af.fields()
		}
		capacity := PacketSize - 4
		if fields != nil {
			capacity -= 1 + len(fields)
		}
		n := min(len(payload), capacity)

		// Adaptation field length covers flags, fields and stuffing.
		stuff := capacity - n
		if fields != nil || stuff > 0 {
			pkt[3] |= 0x20
			afLen := len(fields) + stuff
			if fields == nil {
				afLen = stuff - 1
			}
			pkt[4] = byte(afLen)
			off := 5
			if afLen > 0 {
				if fields == nil {
					fields = []byte{0}
				}
				off += copy(pkt[5:], fields)
				for i := off; i < 5+afLen; i++ {
					pkt[i] = 0xFF
				}
				off = 5 + afLen
			}
			copy(pkt[off:], payload[:n])
		} else {
			copy(pkt[4:], payload[:n])
		}
		payload = payload[n:]
		dst = append(dst, pkt[:]...)
		first = false
	}
	return dst
}
