package confloader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(WithWatcherLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_WatchNonexistentDir(t *testing.T) {
	w := newTestWatcher(t)
	if err := w.Watch("/nonexistent/path/memgate.yaml"); err == nil {
		t.Error("Watch() error = nil for nonexistent directory")
	}
}

func TestWatcher_OnChange(t *testing.T) {
	w := newTestWatcher(t)

	var mu sync.Mutex
	count := 0
	for i := 0; i < 3; i++ {
		w.OnChange(func(string) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.notifyCallbacks("/x")
		}()
	}
	wg.Wait()

	if count != 30 {
		t.Errorf("callbacks run = %d, want 30", count)
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_FileChange(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "memgate.yaml")
	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(config, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t)
	if err := w.Watch(config); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	changed := make(chan string, 10)
	w.OnChange(func(path string) {
		select {
		case changed <- path:
		default:
		}
	})
	w.StartAsync()
	time.Sleep(100 * time.Millisecond)

	// Sibling files in the watched directory are ignored.
	if err := os.WriteFile(other, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(config, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-changed:
		if path != config {
			t.Errorf("OnChange() path = %q, want %q", path, config)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange() not triggered within timeout")
	}
}
