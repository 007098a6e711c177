// Package blobcache materializes remote file content as local files for
// display, fetching each file at most once concurrently.
package blobcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/logging"
	"github.com/driveview/driveview/internal/metrics"
	"github.com/driveview/driveview/internal/remote"
)

// Cache maps file ids to locally cached content paths. Entries live until
// ReleaseAll, which must run on session teardown so handles do not pile up
// across a long session.
type Cache struct {
	dir     string
	fetcher remote.ContentFetcher

	mu       sync.Mutex
	entries  map[string]string
	inflight map[string]*inflightFetch
}

// inflightFetch is one in-progress content fetch; waiters share its result.
type inflightFetch struct {
	done chan struct{}
	path string
	err  error
}

// New creates a cache writing blobs under dir.
func New(dir string, fetcher remote.ContentFetcher) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		fetcher:  fetcher,
		entries:  make(map[string]string),
		inflight: make(map[string]*inflightFetch),
	}, nil
}

// GetBlobPath returns the local path of the file's content, fetching it on
// first use. A failed fetch caches nothing, so the caller can retry later.
// Concurrent calls for one id share a single fetch.
func (c *Cache) GetBlobPath(ctx context.Context, fileID string) (string, error) {
	c.mu.Lock()
	if path, ok := c.entries[fileID]; ok {
		c.mu.Unlock()
		metrics.RecordBlobRequest("hit")
		return path, nil
	}
	if fl, ok := c.inflight[fileID]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if fl.err != nil {
			metrics.RecordBlobRequest("error")
			return "", fl.err
		}
		metrics.RecordBlobRequest("shared")
		return fl.path, nil
	}
	fl := &inflightFetch{done: make(chan struct{})}
	c.inflight[fileID] = fl
	c.mu.Unlock()

	fl.path, fl.err = c.fetch(ctx, fileID)

	c.mu.Lock()
	delete(c.inflight, fileID)
	if fl.err == nil {
		c.entries[fileID] = fl.path
		metrics.SetBlobsCached(len(c.entries))
	}
	c.mu.Unlock()
	close(fl.done)

	if fl.err != nil {
		metrics.RecordBlobRequest("error")
		return "", fl.err
	}
	metrics.RecordBlobRequest("fetched")
	return fl.path, nil
}

// fetch downloads content and writes it atomically (temp file then rename).
func (c *Cache) fetch(ctx context.Context, fileID string) (string, error) {
	body, err := c.fetcher.FetchContent(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	localPath := filepath.Join(c.dir, blobName(fileID))
	tempPath := localPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(f, body)
	f.Close()
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write content: %w", err)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	metrics.RecordBlobFetched(written)
	logging.Debug("blob cached",
		zap.String("file_id", fileID),
		zap.Int64("bytes", written))
	return localPath, nil
}

// IsCached returns true if the file's content is cached.
func (c *Cache) IsCached(fileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fileID]
	return ok
}

// Len returns the number of cached blobs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ReleaseAll removes every cached blob and clears the map. In-flight fetches
// are not interrupted; their results land in the map and are released by the
// next call.
func (c *Cache) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, path := range c.entries {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove blob", zap.String("file_id", id), zap.Error(err))
		}
		delete(c.entries, id)
	}
	metrics.SetBlobsCached(0)
}

var unsafeBlobChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func blobName(fileID string) string {
	return unsafeBlobChars.ReplaceAllString(fileID, "_")
}
