// Package testutil provides shared test helpers for vaults, the index, and
// the category set most tests reconcile against.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/orbit/internal/index"
	"github.com/starford/orbit/internal/models"
	"github.com/starford/orbit/internal/storage"
)

// TestDB opens a throwaway index database that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates an empty vault and its storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	return root, store
}

// Categories returns a small taxonomy with Origins as the default.
func Categories() []models.Category {
	return []models.Category{
		{Number: "000", Name: "Origins"},
		{Number: "100", Name: "Self"},
		{Number: "200", Name: "Health"},
		{Number: "300", Name: "Philosophy"},
	}
}

// WriteDoc writes a vault document and fails the test on error.
func WriteDoc(t *testing.T, store storage.Provider, rel, content string) {
	t.Helper()
	if err := store.Write(rel, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
