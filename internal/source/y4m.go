package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/zsiec/hwenc/internal/media"
)

const (
	y4mMagic       = "YUV4MPEG2"
	y4mFrameMarker = "FRAME"
	maxHeaderLine  = 4096
)

// Y4M reads a YUV4MPEG2 stream. Only 4:2:0 chroma is accepted; the frame
// rate is rounded to the nearest integer.
type Y4M struct {
	r     *bufio.Reader
	info  Info
	frame media.RawFrame
	stats counters
}

// NewY4M parses the stream header from r.
func NewY4M(r io.Reader) (*Y4M, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	line, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("source: y4m header: %w", err)
	}
	info, err := parseY4MHeader(line)
	if err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Y4M{r: br, info: info, frame: newFrame(info), stats: newCounters()}, nil
}

func parseY4MHeader(line string) (Info, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return Info{}, fmt.Errorf("source: not a YUV4MPEG2 stream")
	}
	info := Info{Format: media.PixelFormatI420, FrameRate: 25}
	for _, f := range fields[1:] {
		if len(f) < 2 {
			continue
		}
		val := f[1:]
		var err error
		switch f[0] {
		case 'W':
			info.Width, err = strconv.Atoi(val)
		case 'H':
			info.Height, err = strconv.Atoi(val)
		case 'F':
			info.FrameRate, err = parseRate(val)
		case 'C':
			if !strings.HasPrefix(val, "420") {
				return Info{}, fmt.Errorf("source: unsupported y4m colorspace %q", val)
			}
		case 'I':
			if val != "p" && val != "?" {
				return Info{}, fmt.Errorf("source: interlaced y4m input %q not supported", val)
			}
		}
		if err != nil {
			return Info{}, fmt.Errorf("source: y4m field %q: %w", f, err)
		}
	}
	return info, nil
}

func parseRate(s string) (int, error) {
	num, den, ok := strings.Cut(s, ":")
	if !ok {
		return strconv.Atoi(s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, err
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("zero denominator")
	}
	return int(math.Round(float64(n) / float64(d))), nil
}

func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if len(line) > maxHeaderLine {
			return "", fmt.Errorf("header line longer than %d bytes", maxHeaderLine)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

func (s *Y4M) Info() Info   { return s.info }
func (s *Y4M) Stats() Stats { return s.stats.snapshot() }

// ReadFrame reads the next FRAME record.
func (s *Y4M) ReadFrame(ctx context.Context) (*media.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line, err := readLine(s.r)
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("source: y4m frame header: %w", err)
	}
	if !strings.HasPrefix(line, y4mFrameMarker) {
		return nil, fmt.Errorf("source: y4m frame header %q", line)
	}
	if err := readFull(s.r, s.frame.Data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source: y4m frame without data: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	s.stats.record(len(s.frame.Data))
	return &s.frame, nil
}
