package index

import (
	"log/slog"
	"time"

	"github.com/starford/orbit/internal/checksum"
	"github.com/starford/orbit/internal/frontmatter"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed documents are decoded and upserted
//   - documents removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	indexed := 0
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
	}

	removed := 0
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				removed++
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	logger.Info("sync: complete",
		slog.Int("documents", len(metas)),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed),
	)
	return nil
}

// indexFile decodes data and upserts it into the DB. Documents without usable
// frontmatter are indexed without kind or edges.
func indexFile(db *DB, path string, data []byte, updated time.Time) error {
	row := DocumentRow{
		Path:      path,
		Name:      models.Stem(path),
		Checksum:  checksum.Sum(data),
		UpdatedAt: updated,
	}
	meta, _ := frontmatter.Decode(data)
	if meta == nil {
		return db.UpsertDocument(row, nil)
	}
	row.Kind = frontmatter.String(meta["type"])
	row.Domain = frontmatter.Ref(frontmatter.String(meta["domain"]))

	var edges []models.Edge
	for _, o := range frontmatter.RefList(meta["orbits"]) {
		edges = append(edges, models.Edge{Source: path, Target: o, Type: EdgeOrbit})
	}
	for _, s := range frontmatter.RefList(meta["satellites"]) {
		edges = append(edges, models.Edge{Source: path, Target: s, Type: EdgeSatellite})
	}
	return db.UpsertDocument(row, edges)
}
