package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/raindrop/internal/cli"
	"github.com/rbright/raindrop/internal/config"
	"github.com/rbright/raindrop/internal/indicator"
	"github.com/rbright/raindrop/internal/ipc"
	"github.com/rbright/raindrop/internal/peers"
	"github.com/rbright/raindrop/internal/session"
	"github.com/rbright/raindrop/internal/supervisor"
)

// Daemon owns the control socket, runs the helpers, and serves control commands
// until ctx ends or a helper cannot be spawned.
func (r Runner) Daemon(ctx context.Context, opts cli.Options) error {
	logger, closeLog, err := r.openLogger(opts.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	loaded, err := r.loadConfig(opts.ConfigPath, logger)
	if err != nil {
		return err
	}
	cfg := loaded.Config

	socketPath, err := r.socketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Listen(ctx, socketPath, ipc.ListenOptions{ProbeTimeout: 180 * time.Millisecond, Attempts: 8})
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	appDir := cfg.AppDir
	if appDir == "" {
		appDir = supervisor.DefaultAppDir()
	}
	relayBin, err := supervisor.ResolveKind(appDir, supervisor.KindRelay)
	if err != nil {
		return err
	}
	fireBin, err := supervisor.ResolveKind(appDir, supervisor.KindFire)
	if err != nil {
		return err
	}

	supOpts := []supervisor.Option{supervisor.WithLogger(logger)}
	if r.CommandFactory != nil {
		supOpts = append(supOpts, supervisor.WithCommandFactory(r.CommandFactory))
	}

	ctl := session.New(session.Options{
		Logger:    logger,
		Config:    cfg,
		Relay:     supervisor.New("relay", relayBin, supOpts...),
		Scan:      supervisor.New("scan", fireBin, supOpts...),
		Send:      supervisor.New("send", fireBin, supOpts...),
		Resolver:  peers.NewHTTPResolver(cfg.Peers.LookupTimeout, cfg.Peers.CacheTTL),
		Indicator: indicator.New(cfg.Indicator, logger),
		Save: func(id config.Identity) error {
			return config.SaveIdentity(loaded.Path, id)
		},
	})

	logger.Info("daemon start",
		"config", loaded.Path,
		"socket", socketPath,
		"relay", relayBin,
		"fire", fireBin,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(runCtx, listener, ctl, ctl.Watch)
	}()
	go watchConfig(runCtx, loaded.Path, ctl, logger)

	runErr := ctl.Run(runCtx)
	cancel()
	serverErr := <-serverErrCh

	if runErr != nil {
		logger.Error("daemon stopped", "error", runErr.Error())
		return runErr
	}
	if serverErr != nil {
		return fmt.Errorf("ipc server failed: %w", serverErr)
	}
	logger.Info("daemon stopped")
	return nil
}

// watchConfig reapplies the identity whenever the settings file changes on disk.
func watchConfig(ctx context.Context, path string, ctl *session.Controller, logger *slog.Logger) {
	w, err := config.NewWatcher(path, config.DefaultWatchDebounce)
	if err != nil {
		logger.Warn("config watch disabled", "error", err.Error())
		return
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		logger.Warn("config watch disabled", "error", err.Error())
		return
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.Errors():
			logger.Warn("config watch error", "error", err.Error())
		case <-changes:
			loaded, err := config.Load(path)
			if err != nil {
				logger.Warn("config reload failed", "error", err.Error())
				continue
			}
			if err := ctl.ApplyIdentity(ctx, loaded.Config.Identity); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("config reload not applied", "error", err.Error())
				continue
			}
			logger.Info("config reloaded", "path", loaded.Path)
		}
	}
}
