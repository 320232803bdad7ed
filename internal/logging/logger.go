// Package logging writes the raindrop JSONL log shared by the daemon and client commands.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const fileName = "log.jsonl"

// Runtime is an open log file and the logger writing to it.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// Close closes the log file.
func (r Runtime) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Level maps the --debug flag onto a record level.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New appends JSON records at or above level to the log file. Every record carries
// the writer's pid, since daemon and client processes share the file.
func New(level slog.Level) (Runtime, error) {
	path, err := Path()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})).
		With("pid", os.Getpid())
	return Runtime{Logger: logger, Path: path, file: f}, nil
}

// Path is $XDG_STATE_HOME/raindrop/log.jsonl, falling back to ~/.local/state.
func Path() (string, error) {
	stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve log path: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "raindrop", fileName), nil
}
