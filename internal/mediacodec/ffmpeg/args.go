package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/mediacodec"
)

var avcProfiles = map[int]string{0x01: "baseline", 0x02: "main", 0x08: "high"}

var hevcProfiles = map[int]string{0x01: "main", 0x02: "main10"}

var avcLevels = map[int]string{
	0x100: "3", 0x200: "3.1", 0x400: "3.2",
	0x800: "4", 0x1000: "4.1", 0x2000: "4.2",
	0x4000: "5", 0x8000: "5.1", 0x10000: "5.2",
}

// defaultEncoder picks the software encoder for a codec when none is
// configured.
func defaultEncoder(codec media.CodecID) string {
	if codec == media.CodecHEVC {
		return "libx265"
	}
	return "libx264"
}

func pixFmt(c mediacodec.ColorFormat) string {
	if c == mediacodec.ColorFormatYUV420Planar {
		return "yuv420p"
	}
	return "nv12"
}

// buildArgs translates a codec format into an ffmpeg command line that
// reads raw frames on stdin and writes an Annex B elementary stream to
// stdout.
func buildArgs(f mediacodec.Format, codec media.CodecID, encoder string, extra []string) []string {
	gop := f.FrameRate * f.IFrameInterval
	if gop <= 0 {
		gop = 1
	}
	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt(f.ColorFormat),
		"-video_size", fmt.Sprintf("%dx%d", f.Width, f.Height),
		"-framerate", strconv.Itoa(f.FrameRate),
		"-i", "pipe:0",
		"-an",
		"-c:v", encoder,
		"-b:v", strconv.Itoa(f.Bitrate),
		"-g", strconv.Itoa(gop),
		"-bf", "0",
	}
	if f.MaxBitrate > 0 && f.BitrateMode != mediacodec.BitrateModeCQ {
		args = append(args, "-maxrate", strconv.Itoa(f.MaxBitrate), "-bufsize", strconv.Itoa(f.MaxBitrate))
	}

	profiles := avcProfiles
	if codec == media.CodecHEVC {
		profiles = hevcProfiles
	}
	if name, ok := profiles[f.Profile]; ok {
		args = append(args, "-profile:v", name)
	}
	if codec == media.CodecAVC {
		if name, ok := avcLevels[f.Level]; ok {
			args = append(args, "-level:v", name)
		}
	}
	if strings.HasPrefix(encoder, "libx26") {
		args = append(args, "-tune", "zerolatency")
	}
	args = append(args, extra...)

	out := "h264"
	if codec == media.CodecHEVC {
		out = "hevc"
	}
	return append(args, "-f", out, "pipe:1")
}
