// Package watch reports image files appearing in or leaving the dataset
// directory while the server runs.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/laguz/internal/walker"
)

// Event kinds passed to an EventCallback.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// EventCallback is called for every image change under the root.
// path is relative to the root, slash separated.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on root and reports image changes until
// ctx is cancelled. Only files the walker treats as images are reported, so
// the dataset CSV and temporary files are ignored.
//
// New directories created at runtime are added to the watch list and the
// images already inside them are reported as created. A rename is reported
// as a delete of the old path; the new path arrives as its own create.
func Watch(ctx context.Context, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	emit := func(kind, abs string) {
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		logger.Debug("watcher: image event", slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					reportNewDir(absPath, func(p string) { emit(Created, p) })
					continue
				}
			}

			if !walker.IsImage(filepath.Base(absPath)) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				emit(Created, absPath)
			case ev.Op&fsnotify.Write != 0:
				emit(Updated, absPath)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				emit(Deleted, absPath)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reportNewDir calls fn for every image already present below dir.
func reportNewDir(dir string, fn func(path string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !walker.IsImage(d.Name()) {
			return nil
		}
		fn(path)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
