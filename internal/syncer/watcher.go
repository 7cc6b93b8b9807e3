package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long the watcher waits after the last file event before
// syncing the dirty stems, coalescing editor save bursts into one pass.
const debounce = 500 * time.Millisecond

// Watch starts an fsnotify watcher on the workspace root and re-syncs
// documents whose .ipynb or .py artifact changed, until ctx is cancelled.
//
// The syncer's own writes are harmless here: rewriting a just-synced
// document classifies as no-change and leaves both files untouched, so the
// event stream settles instead of looping. New directories created at
// runtime are added to the watch list.
func (s *Syncer) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	dirty := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for name := range dirty {
				delete(dirty, name)
				if _, err := s.SyncOne(ctx, name); err != nil {
					s.logger.Error("watcher: sync failed", slog.String("name", name), slog.String("error", err.Error()))
					s.emit("failed", name)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
						if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
							s.logger.Warn("watcher: add new dir failed",
								slog.String("path", ev.Name),
								slog.String("error", addErr.Error()))
						}
					}
					continue
				}
			}

			name, ok := stemOf(root, ev.Name)
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				dirty[name] = struct{}{}
				scheduleFlush()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// stemOf maps an absolute event path onto a document stem, filtering out
// everything that is not a notebook or script artifact.
func stemOf(root, path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext != ".ipynb" && ext != ".py" {
		return "", false
	}
	if strings.Contains(path, ".ipynb_checkpoints") {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, ext)), true
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden directories.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
