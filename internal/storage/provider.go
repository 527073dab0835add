// Package storage defines read-only access to a triage directory tree.
package storage

import "io"

// DefaultExclude lists housekeeping directories that never hold repositories,
// projects or datasets.
var DefaultExclude = []string{"__pycache__", "json_templates"}

// Provider is the interface for triage tree access. All paths are relative
// to the provider root and use forward or OS separators.
type Provider interface {
	// Root returns the absolute path the provider is rooted at.
	Root() string
	// Subdirectories lists the non-empty first-level subdirectories of dir,
	// skipping hidden directories and any name in exclude.
	Subdirectories(dir string, exclude []string) ([]string, error)
	// Open opens the file at path for reading.
	Open(path string) (io.ReadCloser, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
}
