package mpegts

import "fmt"

const tsMask = 1<<33 - 1

// appendPESHeader writes a video PES header with an unbounded length. DTS
// is written only when it differs from PTS.
func appendPESHeader(dst []byte, pts, dts int64) []byte {
	withDTS := dts != pts
	hdrLen := 5
	flags := byte(0x80)
	if withDTS {
		hdrLen = 10
		flags = 0xC0
	}
	dst = append(dst, 0x00, 0x00, 0x01, videoStreamID, 0x00, 0x00,
		0x84, // marker bits, data_alignment_indicator
		flags,
		byte(hdrLen),
	)
	if withDTS {
		dst = appendTimestamp(dst, 0x3, pts)
		return appendTimestamp(dst, 0x1, dts)
	}
	return appendTimestamp(dst, 0x2, pts)
}

func appendTimestamp(dst []byte, prefix byte, ts int64) []byte {
	ts &= tsMask
	return append(dst,
		prefix<<4|byte(ts>>29)&0x0E|0x01,
		byte(ts>>22),
		byte(ts>>14)&0xFE|0x01,
		byte(ts>>7),
		byte(ts<<1)|0x01,
	)
}

func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}

// pes is a reassembled PES packet. Timestamps are -1 when absent.
type pes struct {
	streamID byte
	pts      int64
	dts      int64
	data     []byte
}

func parsePES(b []byte) (pes, error) {
	p := pes{pts: -1, dts: -1}
	if len(b) < 9 || b[0] != 0 || b[1] != 0 || b[2] != 1 {
		return p, fmt.Errorf("mpegts: invalid PES start code")
	}
	p.streamID = b[3]
	length := int(b[4])<<8 | int(b[5])
	end := len(b)
	if length > 0 && 6+length < end {
		end = 6 + length
	}
	start := 9 + int(b[8])
	if start > end {
		return p, fmt.Errorf("mpegts: PES header overruns packet")
	}
	switch b[7] >> 6 {
	case 2:
		if start >= 14 {
			p.pts = parseTimestamp(b[9:14])
			p.dts = p.pts
		}
	case 3:
		if start >= 19 {
			p.pts = parseTimestamp(b[9:14])
			p.dts = parseTimestamp(b[14:19])
		}
	}
	p.data = b[start:end]
	return p, nil
}
