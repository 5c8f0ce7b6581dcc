package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the configuration file and reports actionable changes: a
// plugin slot swap, a packs_dir move, or a log-level change, expressed as a
// [ConfigDiff]. Edits that touch nothing the kernel can apply at runtime —
// the listen address, say — are deliberately swallowed: those settings are
// fixed for the process lifetime, and firing the callback for them would
// invalidate cached pipelines for no reason.
//
// Polling (rather than fsnotify) keeps the dependency surface flat; the
// interval is coarse because pipeline invalidation is the expensive
// consequence of a reload.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(*Config, ConfigDiff)

	mu      sync.Mutex
	current *Config
	mtime   time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine; onChange fires
// only for diffs with an actionable field set.
func NewWatcher(path string, onChange func(*Config, ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial stat: %w", err)
	}
	w.current = cfg
	w.mtime = info.ModTime()

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the config file periodically.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its mtime moved and hands an actionable diff
// to the callback. Invalid configs are logged and skipped — the previous
// config stays active and the mtime is left alone so the next tick retries.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	seen := w.mtime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config watcher: reload rejected, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	d := Diff(w.current, cfg)
	w.mtime = info.ModTime()
	if !d.Any() {
		// Touched, but nothing the kernel can act on changed.
		w.mu.Unlock()
		return
	}
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config watcher: configuration changed",
		"path", w.path,
		"plugins_changed", d.PluginsChanged,
		"packs_changed", d.PacksChanged,
		"log_level_changed", d.LogLevelChanged,
	)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(cfg, d)
	}
}
