package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/hwenc/internal/config"
)

// newLogger builds the process logger. DEBUG in the environment forces
// debug level regardless of the configured one.
func newLogger(w io.Writer, cfg config.Logging) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
