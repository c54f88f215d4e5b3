package ffmpeg

import (
	"bytes"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

// accessUnit is one picture's worth of NAL units, start codes removed.
type accessUnit struct {
	nals [][]byte
}

func (au accessUnit) keyframe(codec media.CodecID) bool {
	for _, n := range au.nals {
		if h26x.IsKeyframe(codec, n) {
			return true
		}
	}
	return false
}

func (au accessUnit) hasVCL(codec media.CodecID) bool {
	for _, n := range au.nals {
		if h26x.IsVCL(codec, n) {
			return true
		}
	}
	return false
}

func (au accessUnit) annexB() []byte {
	return h26x.AppendAnnexB(nil, au.nals...)
}

// splitter reassembles a byte stream of Annex B data, arriving in
// arbitrary chunks, into access units. An access unit ends where a NAL
// that can only begin a picture appears after the unit already holds
// slice data.
type splitter struct {
	codec  media.CodecID
	buf    []byte
	cur    [][]byte
	hasVCL bool
	emit   func(accessUnit) error
}

var startCode3 = []byte{0, 0, 1}

func (s *splitter) write(p []byte) error {
	s.buf = append(s.buf, p...)
	cut := bytes.LastIndex(s.buf, startCode3)
	if cut <= 0 {
		return nil
	}
	if s.buf[cut-1] == 0 {
		cut--
	}
	for _, nal := range h26x.Split(s.buf[:cut]) {
		if err := s.push(nal); err != nil {
			return err
		}
	}
	s.buf = append(s.buf[:0], s.buf[cut:]...)
	return nil
}

// flush emits whatever is buffered once the stream has ended.
func (s *splitter) flush() error {
	for _, nal := range h26x.Split(s.buf) {
		if err := s.push(nal); err != nil {
			return err
		}
	}
	s.buf = s.buf[:0]
	return s.emitCurrent()
}

func (s *splitter) push(nal []byte) error {
	vcl := h26x.IsVCL(s.codec, nal)
	if s.hasVCL && (vcl && h26x.StartsPicture(s.codec, nal) || !vcl && s.leadsPicture(nal)) {
		if err := s.emitCurrent(); err != nil {
			return err
		}
	}
	s.cur = append(s.cur, bytes.Clone(nal))
	if vcl {
		s.hasVCL = true
	}
	return nil
}

// leadsPicture reports non-VCL NAL types that may only precede the first
// slice of a picture.
func (s *splitter) leadsPicture(nal []byte) bool {
	t := h26x.NALType(s.codec, nal)
	if s.codec == media.CodecHEVC {
		return t == h26x.HEVCVPS || t == h26x.HEVCSPS || t == h26x.HEVCPPS ||
			t == h26x.HEVCAUD || t == h26x.HEVCSEIPrefix
	}
	return t == h26x.AVCSPS || t == h26x.AVCPPS || t == h26x.AVCAUD || t == h26x.AVCSEI
}

func (s *splitter) emitCurrent() error {
	if len(s.cur) == 0 {
		return nil
	}
	au := accessUnit{nals: s.cur}
	s.cur, s.hasVCL = nil, false
	return s.emit(au)
}
