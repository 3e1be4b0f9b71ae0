package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads a catalog when its files change and hands every valid result to
// onChange. An invalid edit is logged and the previous catalog stays in use.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*entity.Catalog) error
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher
}

func NewWatcher(path string, debounce time.Duration, onChange func(*entity.Catalog) error, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch catalog: path is required")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch catalog: %w", err)
	}

	w := &Watcher{
		path:      filepath.Clean(path),
		debounce:  debounce,
		onChange:  onChange,
		logger:    logger,
		fsWatcher: fsWatcher,
	}
	if err := w.addDirs(); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// addDirs watches the directories that can hold matching files. Single files are
// watched through their directory so editors that replace the file on save
// are still seen.
func (w *Watcher) addDirs() error {
	if !isPattern(w.path) {
		return w.fsWatcher.Add(filepath.Dir(w.path))
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(w.path))
	root := filepath.FromSlash(base)
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsWatcher.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
		}
		return nil
	})
}

func (w *Watcher) matches(name string) bool {
	name = filepath.Clean(name)
	if !isPattern(w.path) {
		return name == w.path
	}
	ok, err := doublestar.PathMatch(w.path, name)
	return err == nil && ok
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()
	w.logger.Info("watching catalog", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isPattern(w.path) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsWatcher.Add(event.Name)
				}
			}
			if !w.matches(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("catalog file event", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "err", err)
			metrics.IncError("catalog", "watch")

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cat, err := Load(w.path)
	if err == nil {
		err = w.onChange(cat)
	}
	if err != nil {
		metrics.IncCatalogReload("error")
		w.logger.Warn("catalog reload rejected, keeping previous catalog", "path", w.path, "err", err)
		return
	}
	metrics.IncCatalogReload("ok")
	w.logger.Info("catalog reloaded", "path", w.path, "formulas", len(cat.Formulas))
}
