// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config controls the default logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json, or "" to pick by terminal
}

// Setup installs a slog default writing to stderr and returns it. Stdout
// stays free for the agent protocol.
func Setup(cfg Config) *slog.Logger {
	l := New(os.Stderr, cfg, isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	slog.SetDefault(l)
	return l
}

// New builds a logger on w. With no explicit format, terminals get text
// and everything else gets JSON.
func New(w io.Writer, cfg Config, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
		if terminal {
			format = "text"
		}
	}

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog level; unknown names give info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
