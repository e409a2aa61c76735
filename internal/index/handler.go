package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/orbit/internal/storage"
	"github.com/starford/orbit/internal/watch"
)

// ChangeFunc is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type ChangeFunc func(kind, path string)

// Indexer keeps the index in step with watch events.
type Indexer struct {
	db       *DB
	store    storage.Provider
	logger   *slog.Logger
	onChange ChangeFunc
}

// NewIndexer creates an Indexer. onChange may be nil.
func NewIndexer(db *DB, store storage.Provider, logger *slog.Logger, onChange ChangeFunc) *Indexer {
	return &Indexer{db: db, store: store, logger: logger, onChange: onChange}
}

// Handle implements watch.Handler.
func (ix *Indexer) Handle(_ context.Context, op watch.Op, rel string) {
	switch op {
	case watch.OpCreate, watch.OpModify:
		data, err := ix.store.Read(rel)
		if err != nil {
			ix.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if err := indexFile(ix.db, rel, data, time.Now()); err != nil {
			ix.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		kind := "updated"
		if op == watch.OpCreate {
			kind = "created"
		}
		ix.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		ix.notify(kind, rel)

	case watch.OpRemove:
		if err := ix.db.DeleteDocument(rel); err != nil {
			ix.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		ix.logger.Debug("watcher: deleted", slog.String("path", rel))
		ix.notify("deleted", rel)
	}
}

// Reconcile implements watch.Reconciler. It removes index entries whose
// files are gone and indexes files the index has not seen, which catches
// folders renamed as a whole.
func (ix *Indexer) Reconcile(_ context.Context) {
	checksums, err := ix.db.AllChecksums()
	if err != nil {
		ix.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := ix.store.List("")
	if err != nil {
		ix.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ix.db.DeleteDocument(p); err == nil {
			ix.logger.Debug("reconcile: removed stale", slog.String("path", p))
			ix.notify("deleted", p)
		}
	}
	for _, m := range metas {
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := ix.store.Read(m.Path)
		if err != nil {
			continue
		}
		if err := indexFile(ix.db, m.Path, data, m.UpdatedAt); err == nil {
			ix.logger.Debug("reconcile: indexed new", slog.String("path", m.Path))
			ix.notify("created", m.Path)
		}
	}
}

func (ix *Indexer) notify(kind, path string) {
	if ix.onChange != nil {
		ix.onChange(kind, path)
	}
}
