package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dshills/ghostline/internal/logging"
)

// DefaultDebounce is the quiet period before a changed file is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives a reloaded configuration, or the error that kept the
// file from loading. The previous configuration stays in effect on error.
type ReloadFunc func(cfg *Config, err error)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce period.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *log.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLookup sets the environment used for overrides on reload.
func WithLookup(lookup LookupFunc) WatcherOption {
	return func(w *Watcher) {
		w.lookup = lookup
	}
}

// Watcher reloads a config file when it changes.
//
// The directory is watched rather than the file so that editors that save
// through a rename are followed.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration
	lookup   LookupFunc
	logger   *log.Logger

	fsw       *fsnotify.Watcher
	debounced *debouncer

	mu      sync.Mutex
	current *Config
	reloads int
	closed  bool
}

// NewWatcher starts watching path. onReload runs on a watcher goroutine.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		onReload: onReload,
		debounce: DefaultDebounce,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	w.debounced = newDebouncer(w.debounce, w.reload)
	return w, nil
}

// Run delivers reloads until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.debounced.cancel()
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.debounced.cancel()
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.logger.Debug("config changed", "path", ev.Name, "op", ev.Op.String())
				w.debounced.call()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.debounced.cancel()
				return nil
			}
			w.logger.Warn("config watcher error", "err", err)
		}
	}
}

// Current returns the last configuration that loaded, or nil.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads returns the number of reload attempts.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	w.mu.Unlock()

	w.debounced.cancel()
	return w.fsw.Close()
}

func (w *Watcher) reload() {
	cfg, err := LoadWithEnv(w.path, w.lookup)

	w.mu.Lock()
	w.reloads++
	if err == nil {
		w.current = cfg
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "err", err)
	} else {
		w.logger.Info("config reloaded", "path", w.path)
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
}
