// Package logging sets up the process-wide structured logger. Records
// go to the console, to a size-rotated file, or both, as JSON lines.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options selects the destinations and verbosity of the default logger.
type Options struct {
	Level      slog.Level
	FilePath   string // empty disables the file sink
	MaxSizeMB  int64
	MaxBackups int
	Console    bool
}

// DefaultOptions logs at info level to the console only.
func DefaultOptions() Options {
	return Options{
		Level:      slog.LevelInfo,
		MaxSizeMB:  100,
		MaxBackups: 5,
		Console:    true,
	}
}

// ParseLevel maps a level name to its slog.Level; unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// New builds a logger for the given options.
func New(opts Options) (*slog.Logger, error) {
	var sinks []io.Writer

	if opts.Console {
		sinks = append(sinks, os.Stderr)
	}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, err
		}
		fw, err := NewRotatingWriter(opts.FilePath, opts.MaxSizeMB*1024*1024, opts.MaxBackups)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fw)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, os.Stderr)
	}

	var w io.Writer = sinks[0]
	if len(sinks) > 1 {
		w = io.MultiWriter(sinks...)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(handler), nil
}

// Setup builds a logger for the given options and installs it as the
// slog default.
func Setup(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
