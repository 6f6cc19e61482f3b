package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watch reloads the registry whenever a manifest in its directory changes.
// Bursts of file events within debounce collapse into one reload. Watch blocks until
// ctx is done. A registry without a directory, or whose directory does not exist,
// is not watched.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	if r.dir == "" {
		return nil
	}
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		slog.Warn("plugins: dir does not exist, hot reload disabled", "dir", r.dir)
		return nil
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}
	slog.Info("plugins: watching for changes", "dir", r.dir)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isManifestFile(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("plugins: manifest changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("plugins: watcher error", "error", err)
		case <-timer.C:
			_ = r.Reload(ctx)
		}
	}
}
