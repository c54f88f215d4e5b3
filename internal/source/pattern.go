package source

import (
	"context"
	"fmt"
	"io"

	"github.com/zsiec/hwenc/internal/media"
	"github.com/zsiec/hwenc/internal/pixfmt"
)

// Pattern synthesizes a moving luma gradient over constant chroma in any
// 4:2:0 layout. Count bounds the number of frames; zero means unbounded.
type Pattern struct {
	info  Info
	count int
	n     int
	i420  []byte
	frame media.RawFrame
	stats counters
}

// NewPattern creates a test pattern source.
func NewPattern(info Info, count int) (*Pattern, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if !info.Format.IsYUV420() {
		return nil, fmt.Errorf("source: pattern needs a 4:2:0 format, got %s", info.Format)
	}
	return &Pattern{
		info:  info,
		count: count,
		i420:  make([]byte, media.FrameSize(media.PixelFormatI420, info.Width, info.Height)),
		frame: newFrame(info),
		stats: newCounters(),
	}, nil
}

func (p *Pattern) Info() Info   { return p.info }
func (p *Pattern) Stats() Stats { return p.stats.snapshot() }

// ReadFrame renders the next frame.
func (p *Pattern) ReadFrame(ctx context.Context) (*media.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.count > 0 && p.n >= p.count {
		return nil, io.EOF
	}
	w, h := p.info.Width, p.info.Height
	for y := range h {
		row := p.i420[y*w : (y+1)*w]
		for x := range row {
			row[x] = byte(x + y + p.n*4)
		}
	}
	chroma := p.i420[w*h:]
	cw, ch := media.ChromaSize(w, h)
	for i := range cw * ch {
		chroma[i] = 128
		chroma[cw*ch+i] = byte(64 + p.n%128)
	}

	data := p.frame.Data
	if p.info.Format == media.PixelFormatI420 {
		copy(data, p.i420)
	} else {
		var err error
		data, err = pixfmt.Convert(data, p.i420, media.PixelFormatI420, p.info.Format, w, h)
		if err != nil {
			return nil, err
		}
	}
	p.frame.Data = data
	p.frame.Length = len(data)
	p.n++
	p.stats.record(len(data))
	return &p.frame, nil
}
