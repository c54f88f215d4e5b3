package h26x

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zsiec/hwenc/internal/media"
)

var ErrMissingParameterSets = errors.New("h26x: missing parameter sets")

// ParameterSets are the configuration NAL units of a stream, without start
// codes. VPS is only used by H.265.
type ParameterSets struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// ExtractParameterSets collects the first VPS, SPS and PPS found in an
// Annex B buffer, typically a codec-config buffer or stream extradata.
func ExtractParameterSets(codec media.CodecID, annexB []byte) ParameterSets {
	var ps ParameterSets
	for _, nal := range Split(annexB) {
		t := NALType(codec, nal)
		switch {
		case codec == media.CodecHEVC && t == HEVCVPS && ps.VPS == nil:
			ps.VPS = nal
		case codec == media.CodecHEVC && t == HEVCSPS && ps.SPS == nil,
			codec == media.CodecAVC && t == AVCSPS && ps.SPS == nil:
			ps.SPS = nal
		case codec == media.CodecHEVC && t == HEVCPPS && ps.PPS == nil,
			codec == media.CodecAVC && t == AVCPPS && ps.PPS == nil:
			ps.PPS = nal
		}
	}
	return ps
}

func (ps ParameterSets) complete(codec media.CodecID) bool {
	if len(ps.SPS) < 4 || len(ps.PPS) == 0 {
		return false
	}
	return codec != media.CodecHEVC || len(ps.VPS) > 0
}

// CodecString parses the SPS in extradata and returns its RFC 6381 string.
func CodecString(codec media.CodecID, extradata []byte) (string, error) {
	ps := ExtractParameterSets(codec, extradata)
	if ps.SPS == nil {
		return "", ErrMissingParameterSets
	}
	if codec == media.CodecHEVC {
		sps, err := ParseHEVCSPS(ps.SPS)
		if err != nil {
			return "", err
		}
		return sps.CodecString(), nil
	}
	sps, err := ParseAVCSPS(ps.SPS)
	if err != nil {
		return "", err
	}
	return sps.CodecString(), nil
}

// DecoderConfig builds the ISO/IEC 14496-15 decoder configuration record
// (avcC or hvcC) from Annex B extradata.
func DecoderConfig(codec media.CodecID, extradata []byte) ([]byte, error) {
	ps := ExtractParameterSets(codec, extradata)
	if !ps.complete(codec) {
		return nil, ErrMissingParameterSets
	}
	if codec == media.CodecHEVC {
		return hvcC(ps)
	}
	return avcC(ps), nil
}

func avcC(ps ParameterSets) []byte {
	b := make([]byte, 0, 11+len(ps.SPS)+len(ps.PPS))
	b = append(b,
		1,         // configurationVersion
		ps.SPS[1], // AVCProfileIndication
		ps.SPS[2], // profile_compatibility
		ps.SPS[3], // AVCLevelIndication
		0xFF,      // reserved | lengthSizeMinusOne = 3
		0xE1,      // reserved | numOfSequenceParameterSets = 1
	)
	b = appendSized(b, ps.SPS)
	b = append(b, 1) // numOfPictureParameterSets
	b = appendSized(b, ps.PPS)
	return b
}

func hvcC(ps ParameterSets) ([]byte, error) {
	sps, err := ParseHEVCSPS(ps.SPS)
	if err != nil {
		return nil, fmt.Errorf("h26x: hvcC: %w", err)
	}

	b := make([]byte, 0, 23+3*5+len(ps.VPS)+len(ps.SPS)+len(ps.PPS))
	b = append(b, 1, sps.ProfileSpace<<6|sps.TierFlag<<5|sps.ProfileIDC)
	b = binary.BigEndian.AppendUint32(b, sps.CompatibilityFlags)
	for shift := 40; shift >= 0; shift -= 8 {
		b = append(b, byte(sps.ConstraintFlags>>shift))
	}
	b = append(b,
		sps.LevelIDC,
		0xF0, 0x00, // min_spatial_segmentation_idc
		0xFC,                          // parallelismType
		0xFC|sps.ChromaFormatIDC&0x03, // chromaFormat
		0xF8|sps.BitDepthLumaMinus8&0x07,
		0xF8|sps.BitDepthChromaMinus8&0x07,
		0x00, 0x00, // avgFrameRate
		0x0F, // 1 temporal layer, nested, 4-byte lengths
		3,    // numOfArrays
	)
	for _, arr := range []struct {
		typ byte
		nal []byte
	}{{HEVCVPS, ps.VPS}, {HEVCSPS, ps.SPS}, {HEVCPPS, ps.PPS}} {
		b = append(b, 0x80|arr.typ, 0x00, 0x01)
		b = appendSized(b, arr.nal)
	}
	return b, nil
}

func appendSized(b, nal []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(nal)))
	return append(b, nal...)
}
