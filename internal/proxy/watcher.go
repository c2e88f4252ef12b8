package proxy

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a Rotator whenever its pool file changes. The parent
// directory is watched so editors that replace the file are noticed.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	rotator     *Rotator
	path        string
	logger      *zap.Logger
	debounceDur time.Duration
	dirtySince  time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewWatcher creates a watcher for path feeding rotator.
func NewWatcher(path string, rotator *Rotator, logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     w,
		rotator:     rotator,
		path:        filepath.Clean(path),
		logger:      logger,
		debounceDur: 200 * time.Millisecond, // editors write in bursts
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start watches in a goroutine. It is a no-op when already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.watcher.Close()
		return err
	}
	w.logger.Info("watching proxy file", zap.String("path", w.path))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing proxy watcher", zap.Error(err))
	}
}

// Reloads returns how many times the pool was reloaded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(50 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("proxy watcher error", zap.Error(err))

		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	if w.dirtySince.IsZero() {
		w.dirtySince = time.Now()
	}
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	if w.dirtySince.IsZero() || time.Since(w.dirtySince) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.dirtySince = time.Time{}
	w.mu.Unlock()

	proxies, err := LoadFile(w.path)
	if err != nil {
		// A rename can leave the path briefly missing; the next write retries.
		w.logger.Warn("proxy file reload failed", zap.Error(err))
		return
	}
	w.rotator.Replace(proxies)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info("proxy pool reloaded", zap.Int("proxies", len(proxies)))
}
