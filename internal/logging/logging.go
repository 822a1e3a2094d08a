// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w. format is "text" (default) or "json";
// level is one of debug, info, warn, error.
func New(w io.Writer, level, format string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           ParseLevel(level),
	})
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// ParseLevel converts a level name to a log.Level, defaulting to info.
// "warning" is accepted as an alias for warn.
func ParseLevel(level string) log.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
