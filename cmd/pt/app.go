package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/config"
	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/remote/gormstore"
	"github.com/pixeltennis/pixeltennis/internal/remote/httpremote"
	"github.com/pixeltennis/pixeltennis/internal/store"
	"github.com/pixeltennis/pixeltennis/internal/syncengine"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

// maxStartupProbe bounds the reachability check done before a command runs.
const maxStartupProbe = 3 * time.Second

// app is everything a command needs to work on the journal.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend kv.Backend
	store   *store.Store
	queue   *queue.Queue
	remote  remote.Store
	engine  *syncengine.Engine
	out     *ui.Renderer

	closeRemote func() error
}

// openApp opens the local journal and, when configured, the remote store.
// The engine starts online only if the remote answers a ping.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	backend, err := kv.Open(kv.Kind(cfg.Storage.Backend), cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		out:     ui.New(os.Stdout),
	}
	warn := ui.New(os.Stderr)

	a.store, err = store.Open(ctx, store.Config{
		Backend: backend,
		Logger:  logger.With("component", "store"),
		OnStorageWarning: func(w store.StorageWarning) {
			fmt.Fprintln(os.Stderr, warn.Warning(w.String()))
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.queue, err = queue.Open(ctx, queue.Config{Backend: backend, Logger: logger.With("component", "queue")})
	if err != nil {
		a.close()
		return nil, err
	}

	a.remote, a.closeRemote, err = openRemote(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	online := false
	if a.remote != nil && cfg.UserID != "" {
		pingCtx, cancel := context.WithTimeout(ctx, min(cfg.Remote.Timeout, maxStartupProbe))
		err := a.remote.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Debug("remote_unreachable", "err", err)
		}
		online = err == nil
	}

	a.engine, err = syncengine.New(a.store, a.queue, a.remote, syncengine.Config{
		UserID:         cfg.UserID,
		RequestTimeout: cfg.Remote.Timeout,
		Logger:         logger.With("component", "sync"),
		Online:         online,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openRemote builds the remote store selected by cfg.Remote.Mode. Both
// results are nil in local-only mode.
func openRemote(cfg *config.Config, logger *slog.Logger) (remote.Store, func() error, error) {
	switch cfg.Remote.Mode {
	case config.RemoteHTTP:
		client, err := httpremote.New(cfg.Remote.URL, httpremote.Options{
			Timeout: cfg.Remote.Timeout,
			Logger:  logger.With("component", "httpremote"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		return client, nil, nil
	case config.RemotePostgres:
		opts := gormstore.DefaultOptions()
		opts.Logger = logger.With("component", "gormstore")
		st, err := gormstore.Open(cfg.Remote.DSN, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open remote database: %w", err)
		}
		return st, st.Close, nil
	}
	return nil, nil, nil
}

// close waits for in-flight sends and releases everything.
func (a *app) close() {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.closeRemote != nil {
		errs = append(errs, a.closeRemote())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close_failed", "err", err)
	}
}

// mustOpenApp opens the app for cmd or exits.
func mustOpenApp(cmd *cobra.Command) *app {
	a, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		fatalf("failed to open journal: %v", err)
	}
	return a
}

// requireSync exits unless a remote is configured and a user is signed in.
func (a *app) requireSync() {
	if a.remote == nil {
		fatalf("no remote configured (set remote.mode to http or postgres)")
	}
	if a.cfg.UserID == "" {
		fatalf("not signed in (set user_id or pass --user)")
	}
}
