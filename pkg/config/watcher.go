package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher is a Source that reloads its file whenever it changes on disk.
// A reload that fails to parse or validate keeps the previous snapshot.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	logger  *slog.Logger

	// debounce collapses the burst of events editors produce on save.
	debounce time.Duration
	onReload func(*Config)
}

// NewWatcher loads path and returns a Watcher serving it. Call Run to start
// watching.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, logger: logger, debounce: 200 * time.Millisecond}
	w.current.Store(cfg)
	return w, nil
}

// Current returns the latest valid configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnReload registers a callback invoked after each successful reload. It must
// be set before Run.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.onReload = fn
}

// Reload re-reads the file immediately.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.current.Store(cfg)
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}

// Run watches the directory containing the file until ctx is cancelled.
// Watching the directory rather than the file survives editors that replace
// the file on save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	target, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", w.path, err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "err", err)
		}
	}
}
