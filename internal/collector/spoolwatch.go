package collector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchSpool signals on the returned channel whenever a hook creates or
// appends to the spool file. Signals are coalesced; the channel closes when
// ctx is done.
func WatchSpool(ctx context.Context, logger *slog.Logger, spoolPath string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create spool watcher: %w", err)
	}
	// Hooks replace the file, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(spoolPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch spool dir: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != spoolPath || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("spool watcher error", "err", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
