// Package models defines the domain types for Laguz.
package models

import (
	"path"
	"time"
)

// FileEntry is a file discovered by the walker.
type FileEntry struct {
	Name   string `json:"name"`
	Folder string `json:"folder"` // relative to the search root, "." for the root itself
}

// Row is one dataset record, one image.
type Row struct {
	FolderPath string `csv:"folder_path" json:"folder_path"`
	ImageID    string `csv:"image_id" json:"image_id"`
	Class      string `csv:"class" json:"class"`
}

// ImagePath returns the image path relative to the dataset root.
func (r Row) ImagePath() string {
	return path.Join(r.FolderPath, r.ImageID)
}

// LabelChange records a committed label edit for one row.
type LabelChange struct {
	SessionID  string    `json:"session_id"`
	RowIndex   int       `json:"row_index"`
	FolderPath string    `json:"folder_path"`
	ImageID    string    `json:"image_id"`
	OldClass   string    `json:"old_class"`
	NewClass   string    `json:"new_class"`
	ChangedAt  time.Time `json:"changed_at"`
}
