// Package storage defines the comment batch inbox abstraction.
package storage

import "github.com/starford/commentmap/internal/models"

// Provider is the interface for batch file operations. Names are plain
// file names inside the inbox.
type Provider interface {
	// List returns metadata for every batch file in the inbox.
	List() ([]models.BatchMeta, error)
	// Read returns the raw bytes of the named batch.
	Read(name string) ([]byte, error)
	// Write atomically writes content to the named batch.
	Write(name string, content []byte) error
	// Delete removes the named batch.
	Delete(name string) error
}
