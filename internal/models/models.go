// Package models contains the shared data types of the viewer core.
package models

import "time"

// FileRecord is the cached metadata for one remote file. Fields mirror what
// the remote listing returns; records are never mutated after fetch.
type FileRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size,omitempty"` // absent for some remote types (folders, shortcuts)
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Parents      []string  `json:"parents,omitempty"`
}

// IsFolder reports whether the record is a folder rather than displayable media.
func (r FileRecord) IsFolder() bool {
	return r.MimeType == MimeTypeFolder
}

// MimeTypeFolder is the remote's folder MIME type.
const MimeTypeFolder = "application/vnd.google-apps.folder"

// Snapshot is a timestamped, complete cached copy of the remote listing.
// Timestamp is the instant the snapshot was considered complete and is the
// lower bound for the next incremental query. IDs are unique within Records.
type Snapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Records   []FileRecord `json:"records"`
}
