package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"github.com/zsiec/hwenc/internal/config"
	"github.com/zsiec/hwenc/internal/device"
	"github.com/zsiec/hwenc/internal/encoder"
	"github.com/zsiec/hwenc/internal/h26x"
	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mpegts"
)

var (
	sps720p = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	pps = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
)

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func missingConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "none.toml")
}

func setDeviceEnv(t *testing.T, cpu string) {
	t.Helper()
	t.Setenv(device.EnvSDK, "33")
	t.Setenv(device.EnvModel, "Pixel 8")
	t.Setenv(device.EnvCPU, cpu)
}

func TestDeviceCommand(t *testing.T) {
	setDeviceEnv(t, "mt6985")

	out, err := runCLI(t, "device", "-c", missingConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	var got deviceReport
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := deviceReport{
		Profile:     device.Profile{SDKVersion: 33, Model: "Pixel 8", CPUFamily: "mt6985"},
		PixelPolicy: "planar",
		PixelFormat: "i420",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceCommandForcedPolicy(t *testing.T) {
	setDeviceEnv(t, "mt6985")

	path := filepath.Join(t.TempDir(), "hwenc.toml")
	if err := os.WriteFile(path, []byte("[encoder]\npixel_policy = \"semi-planar\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "device", "-c", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"pixel_format": "nv12"`) {
		t.Errorf("output does not report nv12:\n%s", out)
	}
}

func TestProbeCommand(t *testing.T) {
	var ts bytes.Buffer
	m := mpegts.NewMuxer(&ts, nil)
	if _, err := m.CreateStream(media.CodecAVC); err != nil {
		t.Fatal(err)
	}
	m.SetDescriptor(media.StreamDescriptor{Codec: media.CodecAVC, Extradata: h26x.AppendAnnexB(nil, sps720p, pps)})
	for i := range 3 {
		nal := []byte{0x41, 0x9a, 0x02, 0x33}
		if i == 0 {
			nal = []byte{0x65, 0x88, 0x84, 0x21}
		}
		pts := int64(i) * 3000
		pkt := &media.EncodedPacket{Data: h26x.AppendAnnexB(nil, nal), PTS: pts, DTS: pts, Duration: 3000, Keyframe: i == 0}
		if err := m.Write(pkt); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "clip.ts")
	if err := os.WriteFile(path, ts.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "probe", path)
	if err != nil {
		t.Fatal(err)
	}
	var sum mpegts.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(sum.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(sum.Streams))
	}
	s := sum.Streams[0]
	if s.CodecString != "avc1.64001F" || s.Width != 1280 || s.Height != 720 {
		t.Errorf("stream = %+v", s)
	}
	if s.Units != 3 || s.Keyframes != 1 {
		t.Errorf("units/keyframes = %d/%d, want 3/1", s.Units, s.Keyframes)
	}
}

func TestProbeCommandMissingFile(t *testing.T) {
	_, err := runCLI(t, "probe", filepath.Join(t.TempDir(), "absent.ts"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestConfigDefaultCommand(t *testing.T) {
	out, err := runCLI(t, "config", "default")
	if err != nil {
		t.Fatal(err)
	}
	var got config.Config
	if err := toml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Encoder != config.Default().Encoder {
		t.Errorf("encoder section = %+v", got.Encoder)
	}
}

func TestConfigShowRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.toml")
	if err := os.WriteFile(path, []byte("[output]\ncontainer = \"mkv\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, "config", "show", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "output.container") {
		t.Errorf("got %v, want output.container error", err)
	}
}

func TestEncodeRejectsInvalidFlags(t *testing.T) {
	_, err := runCLI(t, "encode", "-c", missingConfig(t), "--container", "mp4")
	if err == nil || !strings.Contains(err.Error(), "output.container") {
		t.Errorf("got %v, want output.container error", err)
	}
}

func TestEncodeMissingEncoderBinary(t *testing.T) {
	setDeviceEnv(t, "qcom")
	t.Setenv(config.EnvFFmpeg, filepath.Join(t.TempDir(), "no-such-ffmpeg"))

	out := filepath.Join(t.TempDir(), "out.ts")
	_, err := runCLI(t, "encode", "-c", missingConfig(t), "--frames", "2", "-o", out)
	if !errors.Is(err, encoder.ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "start") {
		t.Errorf("error %q does not name the start step", err)
	}
}

func TestEncodeMissingInput(t *testing.T) {
	_, err := runCLI(t, "encode", "-c", missingConfig(t), "--kind", "y4m", "-i", filepath.Join(t.TempDir(), "absent.y4m"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestOpenOutputReportsCloseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	w, err := openOutput(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{0x47}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("second Close = %v, want os.ErrClosed", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x47}) {
		t.Errorf("file = %x, want 47", data)
	}
}

func TestOpenOutputStdoutIsNotClosed(t *testing.T) {
	var buf bytes.Buffer
	w, err := openOutput("-", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("ts")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close on stdout = %v, want nil", err)
	}
	if buf.String() != "ts" {
		t.Errorf("stdout = %q, want ts", buf.String())
	}
}
