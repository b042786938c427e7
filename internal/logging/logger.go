// Package logging builds the slog loggers used across the service.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON logger on stdout at the provided level. An invalid level
// falls back to info.
func New(level string) *slog.Logger {
	return NewJSON(os.Stdout, level)
}

// NewJSON creates a JSON logger writing to w. Timestamps are UTC.
func NewJSON(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	})
	return slog.New(handler)
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
