package keyring

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a key file into a Keyring when the file changes.
// A file that fails to parse leaves the current key set in place.
type Watcher struct {
	path    string
	keyring *Keyring
	done    chan struct{}
	logger  *slog.Logger

	// Debounce settings to avoid multiple reloads
	debounce   time.Duration
	lastReload time.Time
	reloadMu   sync.Mutex

	onReload func(*Set)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the debounce duration.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// OnReload registers a callback invoked after each successful reload.
func OnReload(fn func(*Set)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher creates a watcher for the key file at path feeding kr.
func NewWatcher(path string, kr *Keyring, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		keyring:  kr,
		done:     make(chan struct{}),
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start watches the key file. It blocks until Stop is called.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("keyring: create watcher: %w", err)
	}

	// Watch the directory so editor renames and symlink swaps are seen.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("keyring: watch dir %s: %w", dir, err)
	}

	w.logger.Info("key file watcher started", "path", w.path)

	base := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := w.debouncedReload(); err != nil {
				w.logger.Error("key file reload failed, keeping current keys",
					"error", err,
					"path", w.path,
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("key file watcher error", "error", err, "path", w.path)

		case <-w.done:
			return watcher.Close()
		}
	}
}

// StartAsync starts watching in a goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("key file watcher stopped with error", "error", err)
		}
	}()
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.done)
}

// Reload loads the key file and swaps it in.
func (w *Watcher) Reload() error {
	set, err := LoadFile(w.path)
	if err != nil {
		return err
	}

	w.keyring.Swap(set)
	w.logger.Info("key set reloaded",
		"path", w.path,
		"keys", set.IDs(),
		"default", set.DefaultID(),
	)

	if w.onReload != nil {
		w.onReload(set)
	}
	return nil
}

func (w *Watcher) debouncedReload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(w.lastReload) < w.debounce {
		return nil
	}
	w.lastReload = now

	// Small delay to ensure file write is complete
	time.Sleep(100 * time.Millisecond)

	return w.Reload()
}
