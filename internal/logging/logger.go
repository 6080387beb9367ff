package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger at the provided level. An invalid level
// string falls back to info.
func New(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// Component returns a child logger tagged with the originating component.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", name))
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
