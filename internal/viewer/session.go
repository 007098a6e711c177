// Package viewer is the session facade the UI layer talks to. A Session owns
// all per-sign-in state; nothing in this module lives in package-level
// mutable variables, so two accounts in one process never share caches.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/blobcache"
	"github.com/driveview/driveview/internal/chunkstore"
	"github.com/driveview/driveview/internal/config"
	"github.com/driveview/driveview/internal/filecache"
	"github.com/driveview/driveview/internal/logging"
	"github.com/driveview/driveview/internal/models"
	"github.com/driveview/driveview/internal/remote"
	"github.com/driveview/driveview/internal/syncengine"
)

// Options configures a session.
type Options struct {
	// Account is the signed-in account identifier, resolved once by the
	// caller. Store naming and isolation derive from it.
	Account string

	CacheDir string
	BlobDir  string // defaults to CacheDir/blobs

	ChunkSize     int // records per stored chunk; 0 = default
	PageCap       int // listing cap; 0 = default
	SchemaVersion int // 0 = derived from the application version

	Lister  remote.Lister
	Fetcher remote.ContentFetcher
}

// Session exposes the viewer core operations for one signed-in account.
type Session struct {
	account string
	cache   *filecache.Cache
	engine  *syncengine.Engine
	blobs   *blobcache.Cache
}

// NewSession builds a session. It sweeps stores left behind by the
// historical malformed-name bug before opening the account's own store.
func NewSession(opts Options) (*Session, error) {
	if opts.Lister == nil || opts.Fetcher == nil {
		return nil, fmt.Errorf("viewer: remote collaborators are required")
	}
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("viewer: cache dir is required")
	}
	if opts.BlobDir == "" {
		opts.BlobDir = filepath.Join(opts.CacheDir, "blobs")
	}
	if opts.SchemaVersion == 0 {
		opts.SchemaVersion = config.SchemaVersion(config.Version)
	}

	filecache.SweepMalformed(opts.CacheDir)

	cache, err := filecache.New(opts.CacheDir, opts.Account, filecache.DefaultCollection,
		opts.ChunkSize, opts.SchemaVersion)
	if err != nil {
		return nil, err
	}

	blobs, err := blobcache.New(opts.BlobDir, opts.Fetcher)
	if err != nil {
		return nil, err
	}

	logging.Info("session opened",
		zap.String("account", opts.Account),
		zap.String("cache_dir", opts.CacheDir))

	return &Session{
		account: opts.Account,
		cache:   cache,
		engine:  syncengine.New(cache, opts.Lister, opts.PageCap),
		blobs:   blobs,
	}, nil
}

// Account returns the account identifier the session is scoped to.
func (s *Session) Account() string {
	return s.account
}

// FetchDriveFiles runs the incremental sync and returns the merged listing.
func (s *Session) FetchDriveFiles(ctx context.Context) ([]models.FileRecord, error) {
	return s.engine.Sync(ctx)
}

// FolderGraph builds the folder hierarchy of a listing.
func (s *Session) FolderGraph(records []models.FileRecord) *models.FolderGraph {
	return models.BuildFolderGraph(records)
}

// GetBlobPathForFile returns a local path to the file's content, fetching it
// on first use.
func (s *Session) GetBlobPathForFile(ctx context.Context, fileID string) (string, error) {
	return s.blobs.GetBlobPath(ctx, fileID)
}

// ReleaseAllBlobs drops every cached blob. Must run on session teardown.
func (s *Session) ReleaseAllBlobs() {
	s.blobs.ReleaseAll()
}

// CacheTimestamp returns the cached snapshot's timestamp without loading the
// record list. ok is false when no snapshot exists; store failures are
// logged and reported as no snapshot, since this is a display-only path.
func (s *Session) CacheTimestamp(ctx context.Context) (time.Time, bool) {
	ts, err := s.cache.Timestamp(ctx)
	if err != nil {
		if !errors.Is(err, chunkstore.ErrCacheEmpty) {
			logging.Warn("cache timestamp unavailable", zap.Error(err))
		}
		return time.Time{}, false
	}
	return ts, true
}

// ClearFileCache deletes the account's snapshot store. The next sync is a
// full one. May race with a save from another session of the same account;
// last write wins.
func (s *Session) ClearFileCache() error {
	return s.cache.Clear()
}

// Close releases session-held resources.
func (s *Session) Close() {
	s.blobs.ReleaseAll()
	logging.Info("session closed", zap.String("account", s.account))
}
