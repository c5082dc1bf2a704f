package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a structured logger with text output.
// app: application name (e.g., "dlsim")
// level: one of "debug", "info", "warn", "error" (default: "info")
// w: destination, os.Stderr when nil
func New(app string, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	logger := slog.New(slog.NewTextHandler(w, opts))

	return logger.With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
