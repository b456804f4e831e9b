package logging

import (
	"bytes"
	log "log/slog"
	"strings"
	"testing"
)

func TestLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug": log.LevelDebug,
		"warn":  log.LevelWarn,
		"error": log.LevelError,
		"":      log.LevelInfo,
		"loud":  log.LevelInfo,
	}
	for name, want := range tests {
		if got := Level(name); got != want {
			t.Errorf("Level(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSetupFiltersByLevel(t *testing.T) {
	prev := log.Default()
	defer log.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, "warn", true)

	log.Info("quiet")
	log.Warn("loud", "k", "v")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "k=v") {
		t.Fatalf("warn line missing: %q", out)
	}
}
