// Package watch turns file system notifications under a vault root into
// document events.
package watch

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

// Op is the kind of change observed for a document.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpRemove
)

// String returns a human-readable representation of the operation.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Handler receives document events. rel is slash-separated and relative to
// the vault root.
type Handler interface {
	Handle(ctx context.Context, op Op, rel string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, op Op, rel string)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, op Op, rel string) { f(ctx, op, rel) }

// Reconciler is implemented by handlers that want a full pass after renames,
// which fsnotify reports only for the old path.
type Reconciler interface {
	Reconcile(ctx context.Context)
}

const renameSettle = 200 * time.Millisecond

// Folders that are never watched.
var skipDirs = map[string]struct{}{".git": {}, ".obsidian": {}, ".trash": {}}

// Watch watches root recursively and dispatches events for Markdown files to
// every handler, in order, until ctx is cancelled. Folders created at runtime
// are added to the watch list and the documents already inside them are
// reported as created.
func Watch(ctx context.Context, root string, logger *slog.Logger, handlers ...Handler) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	dispatch := func(op Op, abs string) {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		logger.Debug("watcher: event", slog.String("op", op.String()), slog.String("path", rel))
		for _, h := range handlers {
			h.Handle(ctx, op, rel)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(renameSettle)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(renameSettle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			for _, h := range handlers {
				if r, ok := h.(Reconciler); ok {
					r.Reconcile(ctx)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if skipped(abs) {
						continue
					}
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", abs))
					}
					for _, p := range documentsIn(abs) {
						dispatch(OpCreate, p)
					}
					continue
				}
			}

			if !isDocument(abs) {
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				dispatch(OpCreate, abs)
			case ev.Op&fsnotify.Write != 0:
				dispatch(OpModify, abs)
			case ev.Op&fsnotify.Remove != 0:
				dispatch(OpRemove, abs)
			case ev.Op&fsnotify.Rename != 0:
				dispatch(OpRemove, abs)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isDocument(p string) bool {
	return strings.HasSuffix(p, ".md") && !strings.HasPrefix(filepath.Base(p), ".")
}

func skipped(dir string) bool {
	_, ok := skipDirs[filepath.Base(dir)]
	return ok
}

// documentsIn returns the Markdown files below dir.
func documentsIn(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipped(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if isDocument(p) {
			out = append(out, p)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skipped(p) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
