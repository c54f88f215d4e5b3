package ffmpeg

import (
	"bytes"
	"testing"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

func collect(codec media.CodecID, chunks ...[]byte) ([]accessUnit, error) {
	var aus []accessUnit
	s := &splitter{codec: codec, emit: func(au accessUnit) error {
		aus = append(aus, au)
		return nil
	}}
	for _, c := range chunks {
		if err := s.write(c); err != nil {
			return nil, err
		}
	}
	return aus, s.flush()
}

func TestSplitterGroupsPictures(t *testing.T) {
	t.Parallel()
	stream := h26x.AppendAnnexB(nil, testSPS, testPPS, testIDR, testSlice, testSlice)

	// Feed one byte at a time so start codes straddle every chunk boundary.
	var chunks [][]byte
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	aus, err := collect(media.CodecAVC, chunks...)
	if err != nil {
		t.Fatal(err)
	}
	if len(aus) != 3 {
		t.Fatalf("got %d access units, want 3", len(aus))
	}
	if len(aus[0].nals) != 3 || !aus[0].keyframe(media.CodecAVC) {
		t.Errorf("first unit = %d nals keyframe=%v, want 3 nals keyframe", len(aus[0].nals), aus[0].keyframe(media.CodecAVC))
	}
	for i, au := range aus[1:] {
		if au.keyframe(media.CodecAVC) {
			t.Errorf("unit %d is a keyframe", i+1)
		}
		if !bytes.Equal(au.annexB(), h26x.AppendAnnexB(nil, testSlice)) {
			t.Errorf("unit %d = %x", i+1, au.annexB())
		}
	}
}

func TestSplitterContinuationSlice(t *testing.T) {
	t.Parallel()
	// first_mb_in_slice != 0 continues the current picture.
	second := []byte{0x41, 0x40, 0x12}
	aus, err := collect(media.CodecAVC, h26x.AppendAnnexB(nil, testSlice, second, testSlice))
	if err != nil {
		t.Fatal(err)
	}
	if len(aus) != 2 || len(aus[0].nals) != 2 {
		t.Fatalf("got %d units, first has %d nals", len(aus), len(aus[0].nals))
	}
}

func TestSplitterHEVCParameterSetsStartUnit(t *testing.T) {
	t.Parallel()
	vps := []byte{0x40, 0x01, 0x0c}
	sps := []byte{0x42, 0x01, 0x01}
	pps := []byte{0x44, 0x01, 0xc1}
	idr := []byte{0x26, 0x01, 0xaf}   // IDR_W_RADL, first slice
	trail := []byte{0x02, 0x01, 0xd0} // TRAIL_R, first slice
	stream := h26x.AppendAnnexB(nil, vps, sps, pps, idr, trail, vps, sps, pps, idr)
	aus, err := collect(media.CodecHEVC, stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(aus) != 3 {
		t.Fatalf("got %d access units, want 3", len(aus))
	}
	if !aus[0].keyframe(media.CodecHEVC) || aus[1].keyframe(media.CodecHEVC) || !aus[2].keyframe(media.CodecHEVC) {
		t.Error("keyframe flags do not match idr placement")
	}
	if len(aus[2].nals) != 4 {
		t.Errorf("last unit has %d nals, want 4", len(aus[2].nals))
	}
}

func TestSplitterCopiesNALs(t *testing.T) {
	t.Parallel()
	stream := h26x.AppendAnnexB(nil, testIDR, testSlice)
	aus, err := collect(media.CodecAVC, stream)
	if err != nil {
		t.Fatal(err)
	}
	clear(stream)
	if !bytes.Equal(aus[0].nals[0], testIDR) {
		t.Errorf("nal aliases input buffer: %x", aus[0].nals[0])
	}
}
