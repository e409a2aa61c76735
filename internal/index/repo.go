package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/models"
)

// Edge types.
const (
	EdgeOrbit     = "orbit"
	EdgeSatellite = "satellite"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Domain    string    `json:"domain,omitempty"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertDocument inserts or replaces a document and its outgoing edges within
// a transaction.
func (db *DB) UpsertDocument(d DocumentRow, edges []models.Edge) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, name, kind, domain, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name       = excluded.name,
			kind       = excluded.kind,
			domain     = excluded.domain,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, d.Path, d.Name, d.Kind, d.Domain, d.Checksum, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM edges WHERE source = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear edges: %w", err)
	}
	if len(edges) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO edges (source, target, type) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare edge insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.Exec(d.Path, e.Target, e.Type); err != nil {
				return fmt.Errorf("index: insert edge: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its outgoing edges.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM edges WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed document keyed by path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// GetDocument returns the row for path or apperr.ErrNotFound.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	var d DocumentRow
	err := db.conn.QueryRow(`
		SELECT path, name, kind, domain, checksum, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&d.Path, &d.Name, &d.Kind, &d.Domain, &d.Checksum, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// Graph returns every document and every edge.
func (db *DB) Graph() ([]DocumentRow, []models.Edge, error) {
	rows, err := db.conn.Query(`
		SELECT path, name, kind, domain, checksum, updated_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer rows.Close()
	var nodes []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Path, &d.Name, &d.Kind, &d.Domain, &d.Checksum, &d.UpdatedAt); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	erows, err := db.conn.Query(`SELECT source, target, type FROM edges ORDER BY source, type, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph edges: %w", err)
	}
	defer erows.Close()
	var edges []models.Edge
	for erows.Next() {
		var e models.Edge
		if err := erows.Scan(&e.Source, &e.Target, &e.Type); err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	return nodes, edges, erows.Err()
}

// Orbiters returns the paths of documents that declare name as an orbit.
func (db *DB) Orbiters(name string) ([]string, error) {
	return db.sources(`SELECT source FROM edges WHERE type = ? AND target = ? COLLATE NOCASE ORDER BY source`, EdgeOrbit, name)
}

// Satellites returns the satellite names declared by the document at path.
func (db *DB) Satellites(path string) ([]string, error) {
	return db.sources(`SELECT target FROM edges WHERE type = ? AND source = ? ORDER BY target`, EdgeSatellite, path)
}

func (db *DB) sources(query string, args ...any) ([]string, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query edges: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
