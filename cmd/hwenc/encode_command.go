package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/hwenc/internal/config"
	"github.com/zsiec/hwenc/internal/device"
	"github.com/zsiec/hwenc/internal/elementary"
	"github.com/zsiec/hwenc/internal/encoder"
	"github.com/zsiec/hwenc/internal/mediacodec/ffmpeg"
	"github.com/zsiec/hwenc/internal/metrics"
	"github.com/zsiec/hwenc/internal/mpegts"
	"github.com/zsiec/hwenc/internal/pipeline"
	"github.com/zsiec/hwenc/internal/source"
)

type encodeFlags struct {
	input     string
	kind      string
	output    string
	container string
	codec     string
	frames    int
	realtime  bool
}

// apply copies flags the user set onto cfg.
func (f encodeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("input") {
		cfg.Input.Path = f.input
	}
	if set("kind") {
		cfg.Input.Kind = f.kind
	}
	if set("output") {
		cfg.Output.Path = f.output
	}
	if set("container") {
		cfg.Output.Container = f.container
	}
	if set("codec") {
		cfg.Encoder.Codec = f.codec
	}
	if set("frames") {
		cfg.Input.Frames = f.frames
	}
	if set("realtime") {
		cfg.Input.Realtime = f.realtime
	}
}

func newEncodeCommand(cmdCtx *commandContext) *cobra.Command {
	var flags encodeFlags

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a raw, y4m or generated source to H.264/H.265",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *loaded
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := newLogger(cmd.ErrOrStderr(), cfg.Logging)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					log.Info("received signal, shutting down", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			stats, err := runEncode(ctx, &cfg, log, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if cfg.Output.Path != "-" {
				return writeJSON(cmd, stats)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&flags.input, "input", "i", "", `Input file, "-" for stdin`)
	fs.StringVar(&flags.kind, "kind", "", "Input kind: raw, y4m or pattern")
	fs.StringVarP(&flags.output, "output", "o", "", `Output file, "-" for stdout`)
	fs.StringVar(&flags.container, "container", "", "Output container: ts or annexb")
	fs.StringVar(&flags.codec, "codec", "", "Codec: h264 or h265")
	fs.IntVar(&flags.frames, "frames", 0, "Frames to generate for the pattern source")
	fs.BoolVar(&flags.realtime, "realtime", false, "Pace frames at the source frame rate")
	return cmd
}

// runEncode wires source, session and multiplexer together and runs the
// pipeline alongside the optional metrics endpoint.
func runEncode(ctx context.Context, cfg *config.Config, log *slog.Logger, stdin io.Reader, stdout io.Writer) (_ pipeline.Stats, err error) {
	src, closeSrc, err := openSource(cfg, stdin)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer closeSrc()

	out, err := openOutput(cfg.Output.Path, stdout)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	var mux encoder.Multiplexer
	switch cfg.Output.Container {
	case "annexb":
		mux = elementary.NewWriter(out)
	default:
		mux = mpegts.NewMuxer(out, log)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	opts := append([]encoder.Option{
		encoder.WithLogger(log),
		encoder.WithRecorder(m),
	}, cfg.SessionOptions()...)
	sess := encoder.New(mux, opts...)
	defer sess.Close()

	ecfg, err := cfg.EncoderConfig()
	if err != nil {
		return pipeline.Stats{}, err
	}
	info := src.Info()
	ecfg.Width, ecfg.Height, ecfg.FrameRate = info.Width, info.Height, info.FrameRate

	profile := cfg.ApplyDevice(device.Probe(ctx, log))
	codec := ffmpeg.New(
		ffmpeg.WithBinary(cfg.FFmpeg.Binary),
		ffmpeg.WithEncoder(cfg.FFmpeg.Encoder),
		ffmpeg.WithInputBuffers(cfg.FFmpeg.InputBuffers),
		ffmpeg.WithExtraArgs(cfg.FFmpeg.ExtraArgs...),
		ffmpeg.WithLogger(log),
	)
	if err := sess.Open(ecfg, profile, codec); err != nil {
		return pipeline.Stats{}, err
	}

	popts := []pipeline.Option{pipeline.WithLogger(log)}
	if cfg.Input.Realtime {
		popts = append(popts, pipeline.WithRealtime())
	}
	p := pipeline.New(src, sess, popts...)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return p.Run(runCtx)
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: m.Handler()}
		g.Go(func() error {
			log.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return p.Stats(), err
	}
	stats := p.Stats()
	log.Info("encode finished",
		"session", sess.ID(),
		"frames", stats.FramesRead,
		"skipped", stats.FramesSkipped,
		"packets", stats.Encoder.PacketsWritten,
		"bytes", stats.Encoder.BytesWritten,
		"codec", sess.Descriptor().CodecString,
	)
	return stats, nil
}

func openSource(cfg *config.Config, stdin io.Reader) (source.Source, func(), error) {
	noop := func() {}
	if cfg.Input.Kind == "pattern" {
		info, err := cfg.SourceInfo()
		if err != nil {
			return nil, noop, err
		}
		src, err := source.NewPattern(info, cfg.Input.Frames)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	}

	r, closeIn, err := openInput(cfg.Input.Path, stdin)
	if err != nil {
		return nil, noop, err
	}
	var src source.Source
	if cfg.Input.Kind == "y4m" {
		src, err = source.NewY4M(r)
	} else {
		var info source.Info
		if info, err = cfg.SourceInfo(); err == nil {
			src, err = source.NewRaw(r, info)
		}
	}
	if err != nil {
		closeIn()
		return nil, noop, err
	}
	return src, closeIn, nil
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// openOutput returns the destination for the multiplexer. Closing stdout
// is left to the process.
func openOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}
