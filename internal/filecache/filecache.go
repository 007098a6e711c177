// Package filecache is the typed snapshot cache for remote file metadata,
// one embedded store per (account, collection).
package filecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/chunkstore"
	"github.com/driveview/driveview/internal/logging"
	"github.com/driveview/driveview/internal/models"
)

// DefaultCollection is the collection suffix for the media file listing.
const DefaultCollection = "mediafiles"

// Cache stores one account's snapshot of the remote file listing.
type Cache struct {
	account string
	store   *chunkstore.Store[models.FileRecord]
}

// New opens the cache for account in dir. The account identifier must be a
// resolved plain value; store isolation across accounts sharing a profile
// depends on it. chunkSize <= 0 selects the default.
func New(dir, account, collection string, chunkSize, schemaVersion int) (*Cache, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("filecache: account identifier is empty")
	}
	if malformedName.MatchString(account) {
		// A stringified function reference used to end up here instead of
		// its call result, producing garbage database names.
		return nil, fmt.Errorf("filecache: account identifier %q looks like an unevaluated reference", account)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filecache: create cache dir: %w", err)
	}

	path := filepath.Join(dir, sanitize(account)+"_"+sanitize(collection)+".db")
	return &Cache{
		account: account,
		store:   chunkstore.New[models.FileRecord](path, chunkSize, schemaVersion),
	}, nil
}

// Account returns the account identifier the cache is scoped to.
func (c *Cache) Account() string {
	return c.account
}

// LoadSnapshot reads the cached snapshot. chunkstore.ErrCacheEmpty means no
// prior snapshot; callers treat it as the full-sync path.
func (c *Cache) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	timestamp, records, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{Timestamp: timestamp, Records: records}, nil
}

// SaveSnapshot persists the snapshot, replacing any previous one.
func (c *Cache) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	return c.store.Save(ctx, snap.Timestamp, snap.Records)
}

// Timestamp returns the cached snapshot's timestamp without deserializing
// the record list.
func (c *Cache) Timestamp(ctx context.Context) (time.Time, error) {
	return c.store.Timestamp(ctx)
}

// Clear deletes the account's store.
func (c *Cache) Clear() error {
	return c.store.Clear()
}

// malformedName matches database names produced by the historical bug where
// a function reference was stringified into the name instead of its result.
var malformedName = regexp.MustCompile(`function|=>|\(\)`)

// SweepMalformed deletes store files in dir whose names match the known
// corruption pattern. Best effort; runs once at session construction.
func SweepMalformed(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !malformedName.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logging.Warn("failed to remove malformed store", zap.String("path", path), zap.Error(err))
			continue
		}
		logging.Info("removed malformed store", zap.String("path", path))
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}
