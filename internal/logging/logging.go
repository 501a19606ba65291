// Package logging builds the structured logger shared by services and adapters.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const permission = 0664

// Options selects the logger output.
type Options struct {
	Level  string
	Format string // "console" or "json"
	// Path appends to a file instead of writing to Writer.
	Path   string
	Writer io.Writer
}

// Logger is a zerolog logger plus the file it may own.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from opts. Writer defaults to stderr.
func New(opts Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	l := &Logger{}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		w = zerolog.SyncWriter(f)
	}

	switch opts.Format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: opts.Path != ""}
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	l.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
