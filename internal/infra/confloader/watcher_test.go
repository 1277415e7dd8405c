package confloader

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}

	w2, _ := NewWatcher(WithWatcherLogger(nil), WithWatcherDebounce(0))
	defer w2.Stop()
	if w2.logger == nil {
		t.Error("nil logger option should keep the default")
	}
	if w2.debounce != 0 {
		t.Errorf("debounce = %v, want 0", w2.debounce)
	}
}

func TestWatcher_Watch_NonexistentDir(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/path/relaygate.yaml"); err == nil {
		t.Error("Watch() expected error for nonexistent directory")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaygate.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	w, err := NewWatcher(WithWatcherLogger(quietLogger()), WithWatcherDebounce(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	var calls atomic.Int32
	changed := make(chan string, 10)
	w.OnChange(func(p string) {
		calls.Add(1)
		changed <- p
	})
	w.StartAsync()
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		writeConfig(t, path, "log:\n  level: debug\n")
	}

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("changed path = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not triggered")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callbacks = %d, want 1 for a burst of writes", n)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaygate.yaml")
	writeConfig(t, path, "a: 1\n")

	w, err := NewWatcher(WithWatcherLogger(quietLogger()), WithWatcherDebounce(0))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changed := make(chan string, 10)
	w.OnChange(func(p string) { changed <- p })
	w.StartAsync()
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, filepath.Join(dir, "keys.yaml"), "keys: []\n")

	select {
	case p := <-changed:
		t.Fatalf("unexpected callback for %q", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_NotifyCopiesCallbacks(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var count atomic.Int32
	w.OnChange(func(string) {
		count.Add(1)
		// Registering from inside a callback must not deadlock.
		w.OnChange(func(string) {})
	})
	w.notifyCallbacks("/etc/relaygate.yaml")

	if count.Load() != 1 {
		t.Errorf("count = %d, want 1", count.Load())
	}
}
