// Package h26x parses the parts of H.264 and H.265 elementary streams an
// encoder pipeline needs: Annex B NAL unit boundaries, NAL unit types,
// sequence parameter sets and ISO-BMFF decoder configuration records.
package h26x

import (
	"encoding/binary"

	"github.com/zsiec/hwenc/internal/media"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	AVCSlice = 1
	AVCIDR   = 5
	AVCSEI   = 6
	AVCSPS   = 7
	AVCPPS   = 8
	AVCAUD   = 9
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCBlaWLP    = 16
	HEVCCraNut    = 21
	HEVCVPS       = 32
	HEVCSPS       = 33
	HEVCPPS       = 34
	HEVCAUD       = 35
	HEVCSEIPrefix = 39
)

// StartCode is the 4-byte Annex B prefix written before every NAL unit.
var StartCode = []byte{0, 0, 0, 1}

// Split returns the NAL units of an Annex B stream without their start
// codes. Both 3- and 4-byte start codes are recognized; bytes before the
// first start code are ignored.
func Split(data []byte) [][]byte {
	var nals [][]byte
	start := -1
	for i := 0; i+2 < len(data); {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			i++
			continue
		}
		if start >= 0 {
			end := i
			if end > start && data[end-1] == 0 {
				end--
			}
			if end > start {
				nals = append(nals, data[start:end])
			}
		}
		i += 3
		start = i
	}
	if start >= 0 && start < len(data) {
		nals = append(nals, data[start:])
	}
	return nals
}

// NALType returns the unit type of a NAL given its header bytes.
func NALType(codec media.CodecID, nal []byte) byte {
	if len(nal) == 0 {
		return 0
	}
	if codec == media.CodecHEVC {
		return (nal[0] >> 1) & 0x3F
	}
	return nal[0] & 0x1F
}

// IsVCL reports whether the NAL carries slice data.
func IsVCL(codec media.CodecID, nal []byte) bool {
	t := NALType(codec, nal)
	if codec == media.CodecHEVC {
		return t < 32
	}
	return t >= AVCSlice && t <= AVCIDR
}

// IsKeyframe reports whether the NAL is an IDR (H.264) or IRAP (H.265)
// slice.
func IsKeyframe(codec media.CodecID, nal []byte) bool {
	t := NALType(codec, nal)
	if codec == media.CodecHEVC {
		return t >= HEVCBlaWLP && t <= HEVCCraNut
	}
	return t == AVCIDR
}

// IsParameterSet reports whether the NAL is a VPS, SPS or PPS.
func IsParameterSet(codec media.CodecID, nal []byte) bool {
	t := NALType(codec, nal)
	if codec == media.CodecHEVC {
		return t == HEVCVPS || t == HEVCSPS || t == HEVCPPS
	}
	return t == AVCSPS || t == AVCPPS
}

// StartsPicture reports whether a VCL NAL is the first slice of a new
// picture: first_mb_in_slice == 0 for H.264, first_slice_segment_in_pic_flag
// for H.265. Both are the leading bit after the NAL header.
func StartsPicture(codec media.CodecID, nal []byte) bool {
	if !IsVCL(codec, nal) {
		return false
	}
	hdr := 1
	if codec == media.CodecHEVC {
		hdr = 2
	}
	return len(nal) > hdr && nal[hdr]&0x80 != 0
}

// AppendAnnexB appends each NAL to dst behind a 4-byte start code.
func AppendAnnexB(dst []byte, nals ...[]byte) []byte {
	for _, n := range nals {
		dst = append(dst, StartCode...)
		dst = append(dst, n...)
	}
	return dst
}

// ToLengthPrefixed converts an Annex B access unit to 4-byte big-endian
// length-prefixed form.
func ToLengthPrefixed(annexB []byte) []byte {
	nals := Split(annexB)
	size := 0
	for _, n := range nals {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nals {
		out = binary.BigEndian.AppendUint32(out, uint32(len(n)))
		out = append(out, n...)
	}
	return out
}
