package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherTriggersRebuildOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("[app]\nv = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	w.Delay = 50 * time.Millisecond
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	w.Start(ctx, func(context.Context) error {
		rebuilds.Add(1)
		return nil
	})

	if err := os.WriteFile(path, []byte("[app]\nv = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rebuilds.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if rebuilds.Load() == 0 {
		t.Fatal("Expected a rebuild after the file changed")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("v = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	w.Delay = 200 * time.Millisecond
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	w.Start(ctx, func(context.Context) error {
		rebuilds.Add(1)
		return nil
	})

	// a burst of writes inside one debounce window
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("v = 2\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(time.Second)
	if got := rebuilds.Load(); got != 1 {
		t.Errorf("Expected exactly 1 rebuild for the burst, got %d", got)
	}
}

func TestWatcherMissingPathIsTolerated(t *testing.T) {
	w, err := New([]string{"/no/such/file.conf"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected missing paths to be tolerated, got %v", err)
	}
	_ = w.Close()
}
