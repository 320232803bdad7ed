package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// SocketName is the control socket file inside XDG_RUNTIME_DIR.
const SocketName = "raindrop.sock"

var ErrAlreadyRunning = errors.New("raindrop daemon already running")

// SocketPath returns the control socket location for this user session.
func SocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// ListenOptions tunes how a daemon claims the control socket.
type ListenOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	ProbeTimeout time.Duration
	// Attempts is how many times to bind before giving up.
	Attempts int
}

// Listen claims the control socket at path. A socket answered by a live daemon
// yields ErrAlreadyRunning. A socket nobody answers is removed and the bind retried.
// An inconclusive probe leaves the file alone and returns an error.
func Listen(ctx context.Context, path string, opts ListenOptions) (net.Listener, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 200 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		lastErr = err

		if err := removeStale(ctx, path, opts.ProbeTimeout); err != nil {
			return nil, err
		}
		if attempt == opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("claim socket %s after %d attempts: %w", path, opts.Attempts, lastErr)
}

// removeStale unlinks path when no daemon answers on it.
func removeStale(ctx context.Context, path string, timeout time.Duration) error {
	alive, err := Probe(ctx, path, timeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}
