package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/safezone/internal/policydiff"
)

const defaultDebounce = 500 * time.Millisecond

// Reloader watches a policy file and reloads the dispatcher when it changes.
// The parent directory is watched so editors that replace the file by rename
// are still seen.
type Reloader struct {
	watcher    *fsnotify.Watcher
	dispatcher *Dispatcher
	path       string
	debounce   time.Duration
	logger     *slog.Logger
}

// NewReloader creates a watcher for the policy file at path. The file's
// directory must exist; the file itself may not exist yet.
func NewReloader(d *Dispatcher, path string, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Reloader{
		watcher:    watcher,
		dispatcher: d,
		path:       abs,
		debounce:   defaultDebounce,
		logger:     logger,
	}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait after the last event before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, r.reload)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	prev := r.dispatcher.Snapshot()
	if err := r.dispatcher.ReloadFromFile(r.path); err != nil {
		r.logger.Error("policy reload failed, keeping previous snapshot", "path", r.path, "error", err)
		return
	}
	next := r.dispatcher.Snapshot()
	diff := policydiff.Diff(prev, next)
	r.logger.Info("policy reloaded", "path", r.path, "hash", next.Hash(), "changes", policydiff.Summary(diff))
	if diff.Loosened() {
		r.logger.Warn("policy reload widened permissions", "path", r.path, "changes", policydiff.Summary(diff))
	}
}
