// Package storage defines the dataset directory abstraction: the folder
// holding the images and the CSV table that labels them.
package storage

import (
	"io"
	"io/fs"
)

// Provider is the interface for dataset directory operations. Paths are
// relative to the root and use forward slashes.
type Provider interface {
	// Root returns the absolute path of the dataset directory.
	Root() string
	// Abs resolves path against the root, rejecting traversal outside it.
	Abs(path string) (string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Open opens the file at path for streaming reads.
	Open(path string) (io.ReadCloser, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}
