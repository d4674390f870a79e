package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatFollowsTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Config{}, false).Info("city restored", "tick", 12)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("non-terminal output is not JSON: %q", buf.String())
	}
	if rec["msg"] != "city restored" || rec["tick"] != float64(12) {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	New(&buf, Config{}, true).Info("city restored", "tick", 12)
	if !strings.Contains(buf.String(), "msg=\"city restored\" tick=12") {
		t.Errorf("terminal output = %q, want text handler", buf.String())
	}

	buf.Reset()
	New(&buf, Config{Format: "json"}, true).Info("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("explicit json on a terminal = %q", buf.String())
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Level: "warn", Format: "text"}, false)
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("output = %q", buf.String())
	}
}
