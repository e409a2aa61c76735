// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/orbit/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent folders.
	Write(path string, content []byte) error
	// Create writes content only if path does not exist yet.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames a file or folder. It refuses to overwrite an existing target.
	Move(oldPath, newPath string) error
	// Exists reports whether path exists.
	Exists(path string) bool
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// Dirs returns the names of the immediate subfolders of dir.
	Dirs(dir string) ([]string, error)
	// FindByName returns every .md file whose stem equals name, ignoring case,
	// in lexical walk order.
	FindByName(name string) ([]string, error)
}
