package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cronos/internal/browser"
	"cronos/internal/config"
	"cronos/internal/journal"
	"cronos/internal/logging"
	"cronos/internal/manager"
	"cronos/internal/messaging"
	"cronos/internal/proxy"

	"go.uber.org/zap"
)

// newLauncher starts real browsers. Tests replace it.
var newLauncher = func(logger *zap.Logger) browser.Launcher {
	return browser.NewRodLauncher(logger)
}

// app wires the services shared by every command.
type app struct {
	cfg      *config.Config
	rotator  *proxy.Rotator
	journal  *journal.Store
	manager  *manager.Manager
	sender   *messaging.Orchestrator
	watcher  *proxy.Watcher
	strategy proxy.Strategy
}

// newApp builds the services for cfg. The journal is opened only when
// enabled; the proxy file is watched only when watch is set and a file is
// configured.
func newApp(ctx context.Context, cfg *config.Config, watch bool) (*app, error) {
	rotator, err := loadPool(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, rotator: rotator, strategy: proxy.Strategy(cfg.Proxy.Strategy)}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = store
	}

	opts := manager.Options{
		Rotator:     rotator,
		Strategy:    a.strategy,
		AssignProxy: cfg.Proxy.AssignOnCreate,
	}
	if a.journal != nil {
		opts.Recorder = a.journal
	}
	launcher := newLauncher(logging.Get(logging.CategoryBrowser))
	a.manager = manager.New(cfg, launcher, logging.Get(logging.CategoryManager), opts)

	var sendOpts []messaging.Option
	if a.journal != nil {
		sendOpts = append(sendOpts, messaging.WithRecorder(a.journal))
	}
	a.sender = messaging.NewOrchestrator(a.manager, cfg, logging.Get(logging.CategoryMessaging), sendOpts...)

	if watch && cfg.Proxy.Watch && cfg.Proxy.File != "" {
		w, err := proxy.NewWatcher(cfg.Proxy.File, rotator, logging.Get(logging.CategoryProxy))
		if err != nil {
			a.close()
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.watcher = w
	}
	return a, nil
}

// close shuts every session down and releases the journal.
func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.manager != nil {
		a.manager.Shutdown()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logging.Get(logging.CategoryJournal).Warn("failed to close journal", zap.Error(err))
		}
	}
}

// loadPool builds the proxy pool from the inline list and the pool file.
func loadPool(cfg *config.Config) (*proxy.Rotator, error) {
	entries := append([]string(nil), cfg.Proxy.Proxies...)
	if cfg.Proxy.File != "" {
		fromFile, err := proxy.LoadFile(cfg.Proxy.File)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Get(logging.CategoryProxy).Warn("proxy file not found", zap.String("path", cfg.Proxy.File))
		case err != nil:
			return nil, fmt.Errorf("load proxy file: %w", err)
		default:
			entries = append(entries, fromFile...)
		}
	}
	return proxy.NewRotator(entries...), nil
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}
