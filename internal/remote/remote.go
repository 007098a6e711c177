// Package remote defines the contracts this module needs from the remote
// file service and provides the Google Drive implementation.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/driveview/driveview/internal/models"
)

// Page is one page of a remote listing.
type Page struct {
	Files         []models.FileRecord
	NextPageToken string
}

// Lister is the paginated "list files modified since" call.
type Lister interface {
	// ListChangedSince returns files modified strictly after modifiedAfter.
	// A zero modifiedAfter lists everything. pageToken continues a prior
	// page; an empty NextPageToken in the result means the listing is
	// exhausted.
	ListChangedSince(ctx context.Context, modifiedAfter time.Time, pageToken string) (*Page, error)
}

// ContentFetcher fetches a file's binary content.
type ContentFetcher interface {
	FetchContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// FetchError wraps a remote listing or content failure.
type FetchError struct {
	Op     string // "list" or "content"
	FileID string // set for content fetches
	Err    error
}

func (e *FetchError) Error() string {
	if e.FileID != "" {
		return fmt.Sprintf("remote %s %s: %v", e.Op, e.FileID, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
