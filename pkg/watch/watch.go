// Package watch rebuilds the configuration from scratch when a contributing
// file changes. There is no in-place patching of live objects: a change event
// invokes a rebuild callback that constructs a fresh store and resolver.
package watch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// RebuildFunc rebuilds the store and resolver from current file contents.
type RebuildFunc func(ctx context.Context) error

// Watcher watches configuration files and debounces rebuilds.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	// Delay is the debounce window; events inside one window trigger a
	// single rebuild.
	Delay time.Duration
}

// New creates a watcher over the given files.
func New(paths []string, logger zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher: watcher,
		logger:  logger,
		Delay:   500 * time.Millisecond,
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if err := watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	return w, nil
}

// Start processes events until ctx is cancelled, invoking rebuild after each
// debounce window with at least one change.
func (w *Watcher) Start(ctx context.Context, rebuild RebuildFunc) {
	go w.processEvents(ctx, rebuild)
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context, rebuild RebuildFunc) {
	var rebuildTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			rebuildTimer = time.AfterFunc(w.Delay, func() {
				w.logger.Info().Msg("Rebuilding configuration...")
				if err := rebuild(ctx); err != nil {
					w.logger.Error().Err(err).Msg("Failed to rebuild configuration")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
