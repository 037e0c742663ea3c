// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a coloured tint logger in development and a JSON logger
// everywhere else.
func New(w io.Writer, env string) *slog.Logger {
	if env == "development" || env == "" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewCLI returns a tint logger for terminal commands. Only warnings and
// errors are shown unless verbose is set.
func NewCLI(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
