// Package logging wires up the process-wide slog logger: a colorized tint
// handler on the terminal, and a plain text handler writing to a logfile
// under the workspace's internal directory.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options configures Setup.
type Options struct {
	// LogDir is the directory the text logfile is written into. If empty,
	// only the terminal handler is installed.
	LogDir string
	Debug  bool
}

// Setup installs the process-wide slog.Default logger and returns the
// open logfile handle (nil if LogDir was empty), which the caller is
// responsible for closing on shutdown.
func Setup(opts Options) (*os.File, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		}),
	}

	var logFile *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(opts.LogDir, "feishu-sync.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		logFile = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = newMultiHandler(handlers...)
	}

	slog.SetDefault(slog.New(handler))
	return logFile, nil
}
