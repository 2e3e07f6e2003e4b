package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for more writes before
// reloading; editors and config management tools often write a file in
// several bursts.
const defaultDebounce = 500 * time.Millisecond

// Watcher watches a config file and invokes a callback with the newly
// loaded configuration whenever it changes. A file that fails to load
// or validate is reported and skipped; the previous configuration stays
// in effect.
type Watcher struct {
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		logger:   logger,
		watcher:  fsw,
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching. onChange runs on the watcher goroutine with
// each successfully loaded config.
func (w *Watcher) Start(ctx context.Context, onChange func(*Config)) error {
	// Watch the directory, not the file: editors replace files by
	// rename, which drops a direct file watch.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.run(ctx, onChange)

	w.logger.Info("Config watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context, onChange func(*Config)) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-ticker.C:
			w.pendingMu.Lock()
			pending := w.pending
			w.pending = false
			w.pendingMu.Unlock()
			if !pending {
				continue
			}
			w.reload(onChange)
		}
	}
}

func (w *Watcher) reload(onChange func(*Config)) {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Ignoring config change that failed to load",
			"path", w.path,
			"error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Ignoring config change that failed validation",
			"path", w.path,
			"error", err)
		return
	}

	w.logger.Info("Config changed, reloading", "path", w.path)
	onChange(cfg)
}
