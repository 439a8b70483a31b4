// Package logging provides charmbracelet/log loggers for ghostline's
// components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	Level     string
	Format    string
	Timestamp bool
	Caller    bool
	Output    io.Writer
}

// New creates a logger with the given prefix.
func New(prefix string, opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Prefix:          prefix,
		Level:           ParseLevel(opts.Level),
		ReportCaller:    opts.Caller,
		ReportTimestamp: opts.Timestamp,
		Formatter:       ParseFormat(opts.Format),
	})
}

// Default creates a text logger that respects the global log level.
func Default(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:    prefix,
		Level:     log.GetLevel(),
		Formatter: log.TextFormatter,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Sub derives a logger for a component from parent. A nil parent yields a
// discarding logger.
func Sub(parent *log.Logger, prefix string) *log.Logger {
	if parent == nil {
		return Discard()
	}
	return parent.WithPrefix(prefix)
}

// ParseLevel maps a level name to a log level. Unknown names select info.
func ParseLevel(name string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// ParseFormat maps a format name ("text", "json", "logfmt") to a formatter.
func ParseFormat(name string) log.Formatter {
	switch strings.ToLower(name) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
