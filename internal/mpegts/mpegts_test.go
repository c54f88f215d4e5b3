package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
)

var (
	sps720p = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	pps   = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
	idr   = []byte{0x65, 0x88, 0x84, 0x21}
	slice = []byte{0x41, 0x9a, 0x02, 0x33}
)

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()
	for _, ts := range []int64{0, 1, 3003, 90000, 1<<32 + 12345, tsMask} {
		b := appendTimestamp(nil, 0x2, ts)
		if got := parseTimestamp(b); got != ts {
			t.Errorf("ts %d: got %d", ts, got)
		}
		if b[0]&0x01 == 0 || b[2]&0x01 == 0 || b[4]&0x01 == 0 {
			t.Errorf("ts %d: marker bits missing in %x", ts, b)
		}
	}
}

func TestPESHeader(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		pts, dts int64
		hdrLen   int
	}{
		{"pts only", 9000, 9000, 14},
		{"pts and dts", 12000, 9000, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := appendPESHeader(nil, tt.pts, tt.dts)
			if len(b) != tt.hdrLen {
				t.Fatalf("header length = %d, want %d", len(b), tt.hdrLen)
			}
			p, err := parsePES(append(b, 0xAA, 0xBB))
			if err != nil {
				t.Fatal(err)
			}
			if p.pts != tt.pts || p.dts != tt.dts {
				t.Errorf("pts/dts = %d/%d, want %d/%d", p.pts, p.dts, tt.pts, tt.dts)
			}
			if !bytes.Equal(p.data, []byte{0xAA, 0xBB}) {
				t.Errorf("data = %x", p.data)
			}
			if p.streamID != videoStreamID {
				t.Errorf("stream id = 0x%02X", p.streamID)
			}
		})
	}
}

func TestPacketizeSizes(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 182, 183, 184, 185, 1000} {
		for _, af := range []adaptation{{pcr: -1}, {pcr: 27_000_000, randomAccess: true}} {
			payload := bytes.Repeat([]byte{0x5A}, n)
			var cc uint8
			out := packetize(nil, payload, VideoPID, &cc, af)
			if len(out)%PacketSize != 0 {
				t.Fatalf("n=%d: output %d bytes is not whole packets", n, len(out))
			}
			var got []byte
			for i := 0; i < len(out); i += PacketSize {
				h, p, err := parsePacket(out[i : i+PacketSize])
				if err != nil {
					t.Fatalf("n=%d: %v", n, err)
				}
				if h.pid != VideoPID || h.cc != uint8(i/PacketSize)&0x0F {
					t.Fatalf("n=%d packet %d: pid %d cc %d", n, i/PacketSize, h.pid, h.cc)
				}
				if h.pusi != (i == 0) {
					t.Errorf("n=%d packet %d: pusi = %v", n, i/PacketSize, h.pusi)
				}
				if i == 0 && af.pcr >= 0 && (h.pcr != af.pcr || !h.randomAccess) {
					t.Errorf("n=%d: pcr %d random access %v", n, h.pcr, h.randomAccess)
				}
				got = append(got, p...)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("n=%d pcr=%d: payload of %d bytes came back as %d", n, af.pcr, len(payload), len(got))
			}
		}
	}
}

func TestPSIRoundTrip(t *testing.T) {
	t.Parallel()
	pids, err := parsePAT(psiPayload(patSection(PMTPID)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{PMTPID}, pids); diff != "" {
		t.Errorf("PAT mismatch (-want +got):\n%s", diff)
	}
	streams, err := parsePMT(psiPayload(pmtSection(VideoPID, 0x24)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[uint16]byte{VideoPID: 0x24}, streams); diff != "" {
		t.Errorf("PMT mismatch (-want +got):\n%s", diff)
	}

	bad := psiPayload(patSection(PMTPID))
	bad[len(bad)-1] ^= 0xFF
	if _, err := parsePAT(bad); err == nil {
		t.Error("corrupt CRC accepted")
	}
}

func muxStream(t *testing.T, codec media.CodecID, pkts []*media.EncodedPacket, extradata []byte) (*Muxer, []byte) {
	t.Helper()
	var out bytes.Buffer
	m := NewMuxer(&out, nil)
	h, err := m.CreateStream(codec)
	if err != nil {
		t.Fatal(err)
	}
	if h.TimeBase != media.MPEGClock {
		t.Fatalf("time base = %s, want %s", h.TimeBase, media.MPEGClock)
	}
	if extradata != nil {
		m.SetDescriptor(media.StreamDescriptor{Codec: codec, Extradata: extradata})
	}
	for _, p := range pkts {
		if err := m.Write(p); err != nil {
			t.Fatal(err)
		}
	}
	return m, out.Bytes()
}

func avcPackets() []*media.EncodedPacket {
	var pkts []*media.EncodedPacket
	for i := range 5 {
		data := h26x.AppendAnnexB(nil, slice)
		if i == 0 {
			data = h26x.AppendAnnexB(nil, idr)
		}
		pts := int64(i) * 3000
		pkts = append(pkts, &media.EncodedPacket{Data: data, PTS: pts, DTS: pts, Duration: 3000, Keyframe: i == 0})
	}
	return pkts
}

func TestMuxerRoundTrip(t *testing.T) {
	t.Parallel()
	extradata := h26x.AppendAnnexB(nil, sps720p, pps)
	m, ts := muxStream(t, media.CodecAVC, avcPackets(), extradata)

	r := NewReader(context.Background(), bytes.NewReader(ts))
	var units []*Unit
	for {
		u, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		units = append(units, u)
	}
	if len(units) != 5 {
		t.Fatalf("got %d units, want 5", len(units))
	}
	if diff := cmp.Diff(map[uint16]byte{VideoPID: 0x1B}, r.Streams()); diff != "" {
		t.Errorf("streams mismatch (-want +got):\n%s", diff)
	}
	for i, u := range units {
		if want := int64(i)*3000 + PCRDelay; u.PTS != want || u.DTS != want {
			t.Errorf("unit %d pts/dts = %d/%d, want %d", i, u.PTS, u.DTS, want)
		}
		if u.RandomAccess != (i == 0) {
			t.Errorf("unit %d random access = %v", i, u.RandomAccess)
		}
		nals := h26x.Split(u.Data)
		if h26x.NALType(media.CodecAVC, nals[0]) != h26x.AVCAUD {
			t.Errorf("unit %d does not start with an AUD", i)
		}
	}
	first := h26x.Split(units[0].Data)
	if len(first) != 4 || !bytes.Equal(first[1], sps720p) || !bytes.Equal(first[2], pps) {
		t.Errorf("keyframe unit nals = %x", first)
	}
	if units[0].PCR != 0 {
		t.Errorf("first pcr = %d, want 0", units[0].PCR)
	}

	st := m.Stats()
	if st.Packets != 5 || st.Keyframes != 1 || st.Bytes != int64(len(ts)) || st.TSPackets*PacketSize != st.Bytes {
		t.Errorf("stats = %+v, stream is %d bytes", st, len(ts))
	}
	if rs := r.Stats(); rs.CCErrors != 0 || rs.PSIErrors != 0 || rs.SkippedPackets != 0 {
		t.Errorf("reader stats = %+v", rs)
	}
}

func TestMuxerWriteBeforeCreateStream(t *testing.T) {
	t.Parallel()
	m := NewMuxer(io.Discard, nil)
	if err := m.Write(&media.EncodedPacket{Data: []byte{0, 0, 1, 0x65}}); !errors.Is(err, ErrNoStream) {
		t.Fatalf("got %v, want ErrNoStream", err)
	}
}

func TestMuxerCreateStream(t *testing.T) {
	t.Parallel()
	m := NewMuxer(io.Discard, nil)
	if _, err := m.CreateStream(0); err == nil {
		t.Error("unknown codec accepted")
	}
	if _, err := m.CreateStream(media.CodecHEVC); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateStream(media.CodecHEVC); err != nil {
		t.Errorf("re-registering the same codec: %v", err)
	}
	if _, err := m.CreateStream(media.CodecAVC); err == nil {
		t.Error("second codec accepted")
	}
}

func TestMuxerCodecConfigPacket(t *testing.T) {
	t.Parallel()
	extradata := h26x.AppendAnnexB(nil, sps720p, pps)
	pkts := append([]*media.EncodedPacket{{Data: extradata, CodecConfig: true}}, avcPackets()...)
	m, _ := muxStream(t, media.CodecAVC, pkts, nil)
	if got := m.Stats().Packets; got != 5 {
		t.Errorf("packets = %d, want 5", got)
	}
	if !bytes.Equal(m.extradata, extradata) {
		t.Errorf("extradata = %x", m.extradata)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMuxerWriteError(t *testing.T) {
	t.Parallel()
	m := NewMuxer(failWriter{}, nil)
	if _, err := m.CreateStream(media.CodecAVC); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(avcPackets()[0]); err == nil {
		t.Fatal("expected write error")
	}
}

func TestReaderCountsContinuityErrors(t *testing.T) {
	t.Parallel()
	_, ts := muxStream(t, media.CodecAVC, avcPackets(), nil)

	// Drop the only transport packet of the second unit.
	var kept []byte
	dropped := false
	for i := 0; i < len(ts); i += PacketSize {
		h, _, _ := parsePacket(ts[i : i+PacketSize])
		if !dropped && h.pid == VideoPID && h.cc == 1 {
			dropped = true
			continue
		}
		kept = append(kept, ts[i:i+PacketSize]...)
	}
	r := NewReader(context.Background(), bytes.NewReader(kept))
	for {
		if _, err := r.Next(); err != nil {
			break
		}
	}
	if got := r.Stats().CCErrors; got != 1 {
		t.Errorf("cc errors = %d, want 1", got)
	}
}

func TestReaderContextCancel(t *testing.T) {
	t.Parallel()
	_, ts := muxStream(t, media.CodecAVC, avcPackets(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewReader(ctx, bytes.NewReader(ts)).Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	extradata := h26x.AppendAnnexB(nil, sps720p, pps)
	_, ts := muxStream(t, media.CodecAVC, avcPackets(), extradata)
	sum, err := Summarize(context.Background(), bytes.NewReader(ts))
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(sum.Streams))
	}
	s := sum.Streams[0]
	want := StreamSummary{
		PID:         VideoPID,
		StreamType:  0x1B,
		Codec:       "h264",
		CodecString: "avc1.64001F",
		Width:       1280,
		Height:      720,
		Units:       5,
		Keyframes:   1,
		Bytes:       s.Bytes,
		FirstPTS:    PCRDelay,
		LastPTS:     PCRDelay + 12000,
		Duration:    133333 * time.Microsecond,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}
