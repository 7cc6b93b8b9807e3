// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/nbsync/internal/models"

// Provider is the interface for workspace file operations. Document names
// are extension-less stems relative to the workspace root; the provider maps
// them onto the paired .ipynb and .py artifacts.
type Provider interface {
	// List returns metadata for every document stem present in the workspace
	// as a notebook, a script, or both, sorted by name.
	List() ([]models.DocumentMetadata, error)
	// ReadNotebook returns the raw bytes of the structured form.
	ReadNotebook(name string) ([]byte, error)
	// ReadScript returns the raw bytes of the flat form.
	ReadScript(name string) ([]byte, error)
	// WriteNotebook atomically writes the structured form.
	WriteNotebook(name string, content []byte) error
	// WriteScript atomically writes the flat form.
	WriteScript(name string, content []byte) error
}
