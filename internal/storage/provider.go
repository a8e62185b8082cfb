// Package storage defines the read-only, root-confined file-system access
// used for Steam library directories.
package storage

import "github.com/starford/workshopwatch/internal/models"

// Provider is the interface for file operations below one library root.
type Provider interface {
	// Root returns the absolute directory all paths are relative to.
	Root() string
	// List returns metadata for every file under dir whose name ends in suffix.
	List(dir, suffix string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
}
