package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the resolver snapshot whenever the backing table file is
// rewritten. It watches the parent directory so atomic rename-replace writes
// are observed.
type Watcher struct {
	resolver *Resolver
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

func NewWatcher(resolver *Resolver, logger *slog.Logger) (*Watcher, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		resolver: resolver,
		logger:   logger,
		watcher:  fileWatcher,
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	tablePath := w.resolver.source.Path()
	if err := w.watcher.Add(filepath.Dir(tablePath)); err != nil {
		return fmt.Errorf("watch permission table directory: %w", err)
	}
	w.logger.Info("permission table watcher started", "path", tablePath)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("permission table watcher stopped")
			return nil
		case event := <-w.watcher.Events:
			w.handleEvent(event, tablePath)
		case err := <-w.watcher.Errors:
			if err != nil {
				w.logger.Error("permission table watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, tablePath string) {
	if filepath.Clean(event.Name) != filepath.Clean(tablePath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if err := w.resolver.Reload(); err != nil {
		w.logger.Error("permission table reload failed", "path", tablePath, "error", err)
		return
	}
	w.logger.Info("permission table reloaded", "path", tablePath, "version", w.resolver.Version())
}
