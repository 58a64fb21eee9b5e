package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/livedemo/internal/logging"
)

// reloadDebounce batches the burst of events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads the catalog file at path whenever it changes and passes each
// revision that parses and validates to apply. Invalid revisions are logged
// and skipped. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, apply func(*Catalog), log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file by rename.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info(ctx, "watching catalog", logging.String("path", abs))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			pending = time.After(reloadDebounce)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn(ctx, "catalog watcher error", logging.Err(werr))
		case <-pending:
			pending = nil
			cat, err := LoadFile(abs)
			if err != nil {
				log.Warn(ctx, "catalog reload rejected", logging.Err(err))
				continue
			}
			log.Info(ctx, "catalog reloaded", logging.Int("widgets", len(cat.Widgets)))
			apply(cat)
		}
	}
}
