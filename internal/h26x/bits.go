package h26x

import "errors"

var errTruncated = errors.New("h26x: truncated bitstream")

// bitReader reads an RBSP MSB-first. The first read past the end sets err
// and every later read returns zero, so parsers check err once per section.
type bitReader struct {
	data []byte
	off  int // bit offset
	err  error
}

func (r *bitReader) u(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		if r.off>>3 >= len(r.data) {
			r.err = errTruncated
			return 0
		}
		bit := (r.data[r.off>>3] >> (7 - uint(r.off&7))) & 1
		v = v<<1 | uint64(bit)
		r.off++
	}
	return v
}

func (r *bitReader) flag() bool { return r.u(1) == 1 }

// ue reads an unsigned Exp-Golomb code.
func (r *bitReader) ue() uint64 {
	zeros := 0
	for r.u(1) == 0 {
		if r.err != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			r.err = errTruncated
			return 0
		}
	}
	return (1<<zeros - 1) + r.u(zeros)
}

// se reads a signed Exp-Golomb code.
func (r *bitReader) se() int64 {
	v := r.ue()
	if v&1 == 1 {
		return int64((v + 1) / 2)
	}
	return -int64(v / 2)
}

func (r *bitReader) skipScalingList(size int) {
	last, next := int64(8), int64(8)
	for j := 0; j < size && r.err == nil; j++ {
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// unescape strips emulation prevention bytes (00 00 03 -> 00 00).
func unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, c := range b {
		if zeros >= 2 && c == 3 {
			zeros = 0
			continue
		}
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, c)
	}
	return out
}
