package model

import "time"

// SourceFile is a file discovered by walking a source folder tree.
type SourceFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mime_type"`
	ModifiedTime time.Time `json:"modified_time"`
	Size         int64     `json:"size"`
	URL          string    `json:"url,omitempty"`
	Path         string    `json:"path,omitempty"`
}

// SourceKind names a source backend.
type SourceKind string

const (
	SourceKindDrive SourceKind = "drive"
	SourceKindGCS   SourceKind = "gcs"
)
