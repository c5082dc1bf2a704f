package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFiltersAndAnnotates(t *testing.T) {
	var buf bytes.Buffer
	log := New("dlsim", "warn", &buf)

	log.Info("hidden")
	log.Warn("shown", slog.Int("tasks", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record passed a warn logger: %s", out)
	}
	for _, want := range []string{"msg=shown", "app=dlsim", "pid=", "tasks=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger reports enabled")
	}
}
