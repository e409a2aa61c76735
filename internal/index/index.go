package index

import "github.com/starford/orbit/internal/models"

// RelationIndex defines the read side of the index used by the API and MCP
// surfaces.
type RelationIndex interface {
	GetDocument(path string) (*DocumentRow, error)
	Graph() ([]DocumentRow, []models.Edge, error)
	Orbiters(name string) ([]string, error)
	Satellites(path string) ([]string, error)
}

// Verify *DB satisfies RelationIndex at compile time.
var _ RelationIndex = (*DB)(nil)
