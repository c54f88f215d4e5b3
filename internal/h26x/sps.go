package h26x

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var ErrNotSPS = errors.New("h26x: not a sequence parameter set")

// AVCSPSInfo holds the fields of an H.264 SPS a muxer or player needs.
type AVCSPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
}

// CodecString returns the RFC 6381 codec string, e.g. "avc1.64001F".
func (s AVCSPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

var highProfiles = map[uint64]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseAVCSPS parses an H.264 SPS NAL unit, header byte included.
func ParseAVCSPS(nal []byte) (AVCSPSInfo, error) {
	if len(nal) < 4 {
		return AVCSPSInfo{}, errTruncated
	}
	if nal[0]&0x1F != AVCSPS {
		return AVCSPSInfo{}, ErrNotSPS
	}
	r := &bitReader{data: unescape(nal[1:])}

	s := AVCSPSInfo{
		ProfileIDC:      byte(r.u(8)),
		ConstraintFlags: byte(r.u(8)),
		LevelIDC:        byte(r.u(8)),
	}
	r.ue() // seq_parameter_set_id

	chroma := uint64(1)
	separatePlanes := false
	if highProfiles[uint64(s.ProfileIDC)] {
		chroma = r.ue()
		if chroma == 3 {
			separatePlanes = r.flag()
		}
		r.ue() // bit_depth_luma_minus8
		r.ue() // bit_depth_chroma_minus8
		r.u(1) // qpprime_y_zero_transform_bypass_flag
		if r.flag() {
			lists := 8
			if chroma == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if !r.flag() {
					continue
				}
				if i < 6 {
					r.skipScalingList(16)
				} else {
					r.skipScalingList(64)
				}
			}
		}
	}

	r.ue() // log2_max_frame_num_minus4
	switch r.ue() {
	case 0:
		r.ue()
	case 1:
		r.u(1)
		r.se()
		r.se()
		for n := r.ue(); n > 0 && r.err == nil; n-- {
			r.se()
		}
	}
	r.ue() // max_num_ref_frames
	r.u(1) // gaps_in_frame_num_value_allowed_flag

	widthMbs := r.ue() + 1
	heightUnits := r.ue() + 1
	frameMbsOnly := r.u(1)
	if frameMbsOnly == 0 {
		r.u(1) // mb_adaptive_frame_field_flag
	}
	r.u(1) // direct_8x8_inference_flag

	var cl, cr, ct, cb uint64
	if r.flag() {
		cl, cr, ct, cb = r.ue(), r.ue(), r.ue(), r.ue()
	}
	if r.err != nil {
		return AVCSPSInfo{}, fmt.Errorf("h26x: parse sps: %w", r.err)
	}

	subW, subH := uint64(2), uint64(2)
	switch {
	case separatePlanes || chroma == 0 || chroma == 3:
		subW, subH = 1, 1
	case chroma == 2:
		subH = 1
	}
	cropX := subW
	cropY := subH * (2 - frameMbsOnly)

	s.Width = int(widthMbs*16 - cropX*(cl+cr))
	s.Height = int(heightUnits*16*(2-frameMbsOnly) - cropY*(ct+cb))
	return s, nil
}

// HEVCSPSInfo holds the profile/tier/level and picture size of an H.265 SPS.
type HEVCSPSInfo struct {
	Width                int
	Height               int
	ProfileSpace         byte
	TierFlag             byte
	ProfileIDC           byte
	CompatibilityFlags   uint32
	ConstraintFlags      uint64 // 48 bits
	LevelIDC             byte
	ChromaFormatIDC      byte
	BitDepthLumaMinus8   byte
	BitDepthChromaMinus8 byte
}

// CodecString returns the RFC 6381 codec string, e.g. "hev1.1.6.L93.B0".
func (s HEVCSPSInfo) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "hev1.%d.%X.%s%d", s.ProfileIDC, bits.Reverse32(s.CompatibilityFlags), tier, s.LevelIDC)

	var cb [6]byte
	last := -1
	for i := range cb {
		cb[i] = byte(s.ConstraintFlags >> (40 - 8*i))
		if cb[i] != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		fmt.Fprintf(&b, ".%X", cb[i])
	}
	return b.String()
}

// ParseHEVCSPS parses an H.265 SPS NAL unit, 2-byte header included.
func ParseHEVCSPS(nal []byte) (HEVCSPSInfo, error) {
	if len(nal) < 4 {
		return HEVCSPSInfo{}, errTruncated
	}
	if (nal[0]>>1)&0x3F != HEVCSPS {
		return HEVCSPSInfo{}, ErrNotSPS
	}
	r := &bitReader{data: unescape(nal[2:])}

	r.u(4) // sps_video_parameter_set_id
	subLayers := int(r.u(3))
	r.u(1) // sps_temporal_id_nesting_flag

	var s HEVCSPSInfo
	s.ProfileSpace = byte(r.u(2))
	s.TierFlag = byte(r.u(1))
	s.ProfileIDC = byte(r.u(5))
	s.CompatibilityFlags = uint32(r.u(32))
	s.ConstraintFlags = r.u(48)
	s.LevelIDC = byte(r.u(8))

	if subLayers > 0 {
		profilePresent := make([]bool, subLayers)
		levelPresent := make([]bool, subLayers)
		for i := 0; i < subLayers; i++ {
			profilePresent[i] = r.flag()
			levelPresent[i] = r.flag()
		}
		for i := subLayers; i < 8; i++ {
			r.u(2) // reserved_zero_2bits
		}
		for i := 0; i < subLayers; i++ {
			if profilePresent[i] {
				r.u(88)
			}
			if levelPresent[i] {
				r.u(8)
			}
		}
	}

	r.ue() // sps_seq_parameter_set_id
	s.ChromaFormatIDC = byte(r.ue())
	if s.ChromaFormatIDC == 3 {
		r.u(1) // separate_colour_plane_flag
	}
	s.Width = int(r.ue())
	s.Height = int(r.ue())
	if r.err != nil {
		return HEVCSPSInfo{}, fmt.Errorf("h26x: parse sps: %w", r.err)
	}

	// Everything past the picture size is best effort.
	if r.flag() {
		l, rt, t, b := r.ue(), r.ue(), r.ue(), r.ue()
		subW, subH := uint64(1), uint64(1)
		switch s.ChromaFormatIDC {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		s.Width -= int((l + rt) * subW)
		s.Height -= int((t + b) * subH)
	}
	s.BitDepthLumaMinus8 = byte(r.ue())
	s.BitDepthChromaMinus8 = byte(r.ue())
	return s, nil
}
