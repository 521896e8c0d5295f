// Package logging builds the zerolog logger shared by bagdesk components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines to w at the given level.
// Unknown levels fall back to info. A nil writer means stderr.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// NewConsole returns a human-readable logger for interactive CLI use.
func NewConsole(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(level, zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
}
