// Package applog configures the process-wide structured logger used by
// every compositor subsystem. It wraps zerolog with rolling daily log
// files so a long-running session doesn't grow one unbounded file.
package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls where logs are written and at what level.
type Options struct {
	// Dir is the directory rolling log files are written into. If
	// empty, logs go to stderr only.
	Dir string
	// Level is the minimum level that is logged.
	Level zerolog.Level
	// Console, when true, also writes human-readable output to stderr
	// in addition to (or instead of, if Dir is empty) the log file.
	Console bool
}

// DefaultOptions returns Options with an info level and console output.
func DefaultOptions() Options {
	return Options{Level: zerolog.InfoLevel, Console: true}
}

// roller rotates the underlying log file at UTC midnight.
type roller struct {
	mu      sync.Mutex
	dir     string
	day     string
	file    *os.File
	console io.Writer
}

func newRoller(dir string, console io.Writer) (*roller, error) {
	r := &roller{dir: dir, console: console}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("applog: create log dir: %w", err)
		}
		if err := r.rotate(time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *roller) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if day == r.day && r.file != nil {
		return nil
	}
	name := filepath.Join(r.dir, fmt.Sprintf("compositor-%s.log", day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("applog: open log file %s: %w", name, err)
	}
	old := r.file
	r.file = f
	r.day = day
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (r *roller) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dir != "" {
		if err := r.rotate(time.Now().UTC()); err != nil {
			return 0, err
		}
		if _, err := r.file.Write(p); err != nil {
			return 0, err
		}
	}
	if r.console != nil {
		return r.console.Write(p)
	}
	return len(p), nil
}

// New builds a zerolog.Logger per Options. The returned closer should be
// called on shutdown to flush and close the active log file.
func New(opts Options) (zerolog.Logger, func() error, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer
	if opts.Console || opts.Dir == "" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	r, err := newRoller(opts.Dir, console)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	logger := zerolog.New(r).Level(opts.Level).With().Timestamp().Logger()
	closer := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.file != nil {
			return r.file.Close()
		}
		return nil
	}
	return logger, closer, nil
}

// Component returns a sub-logger tagged with the given subsystem name,
// matching the teacher's one-concern-per-file convention: one component
// logger per package (wire, server, surface, texture, render, gpu,
// session, layout).
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
