// Package app binds the command tree to the daemon and the control client.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/raindrop/internal/cli"
	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/doctor"
	"github.com/rbright/raindrop/internal/ipc"
	"github.com/rbright/raindrop/internal/logging"
	"github.com/rbright/raindrop/internal/supervisor"
	"github.com/rbright/raindrop/internal/version"
)

var errNoDaemon = errors.New("no running raindrop daemon")

// Runner executes commands against the given output streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// CommandFactory replaces exec.Command for helper processes.
	CommandFactory supervisor.CommandFactoryFunc
	// SocketPath overrides the runtime control socket location.
	SocketPath string
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute runs args and returns the process exit code: 0 on success, 2 for
// usage mistakes, 1 otherwise.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(r, version.String())
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if cli.IsUsageError(err) {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cmd.UsageString())
		return 2
	}
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	return 1
}

// Doctor prints the readiness report and fails when any check fails.
func (r Runner) Doctor(ctx context.Context, opts cli.Options) error {
	loaded, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	report := doctor.Run(ctx, loaded, doctor.Options{SocketPath: r.SocketPath})
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errors.New("doctor checks failed")
	}
	return nil
}

func (r Runner) socketPath() (string, error) {
	if r.SocketPath != "" {
		return r.SocketPath, nil
	}
	return ipc.SocketPath()
}

// openLogger returns the injected logger or a file logger at the level picked by --debug.
func (r Runner) openLogger(debug bool) (*slog.Logger, func(), error) {
	rt, err := logging.New(logging.Level(debug))
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	logger := r.Logger
	if logger == nil {
		logger = rt.Logger
	}
	logger.Debug("log file", "path", rt.Path)
	return logger, func() { _ = rt.Close() }, nil
}

func (r Runner) loadConfig(path string, logger *slog.Logger) (config.Loaded, error) {
	loaded, err := config.Load(path)
	if err != nil {
		logger.Error("load config failed", "error", err.Error())
		return config.Loaded{}, err
	}
	for _, w := range loaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}
	return loaded, nil
}
