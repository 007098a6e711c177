// Package syncengine produces an up-to-date file listing while minimizing
// remote calls: cached snapshot + remote delta, merged and re-persisted.
package syncengine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/chunkstore"
	"github.com/driveview/driveview/internal/filecache"
	"github.com/driveview/driveview/internal/logging"
	"github.com/driveview/driveview/internal/metrics"
	"github.com/driveview/driveview/internal/models"
	"github.com/driveview/driveview/internal/remote"
)

// DefaultPageCap bounds how many records one sync will pull from the remote.
// Some accounts have effectively unbounded file counts; past the cap the
// listing is abandoned rather than errored so the caller stays responsive.
const DefaultPageCap = 10000

// Engine merges remote deltas into the cached snapshot.
type Engine struct {
	cache   *filecache.Cache
	lister  remote.Lister
	pageCap int
}

// New creates an engine. pageCap <= 0 selects the default.
func New(cache *filecache.Cache, lister remote.Lister, pageCap int) *Engine {
	if pageCap <= 0 {
		pageCap = DefaultPageCap
	}
	return &Engine{cache: cache, lister: lister, pageCap: pageCap}
}

// Sync returns the merged file listing.
//
// Load failures fall back to a full sync; remote failures after a successful
// cache load return the stale cached list, because a stale listing is
// strictly more useful than none. A save failure is logged and does not
// invalidate the in-memory result. Re-running Sync against an unchanged
// remote yields a set-equal listing.
func (e *Engine) Sync(ctx context.Context) ([]models.FileRecord, error) {
	start := time.Now()

	var cached []models.FileRecord
	var since time.Time
	haveCache := false

	snap, err := e.cache.LoadSnapshot(ctx)
	switch {
	case err == nil:
		cached = snap.Records
		since = snap.Timestamp
		haveCache = true
	case errors.Is(err, chunkstore.ErrCacheEmpty):
		logging.Debug("no cached snapshot, full sync")
	default:
		// A broken store is not fatal; rebuild it from a full sync.
		logging.Warn("cached snapshot unreadable, full sync", zap.Error(err))
		metrics.RecordStoreOp("load", false)
	}

	fetched, err := e.fetchChanges(ctx, since)
	if err != nil {
		if haveCache {
			logging.Warn("remote listing failed, serving stale snapshot",
				zap.Int("records", len(cached)),
				zap.Time("as_of", since),
				zap.Error(err))
			metrics.RecordSync("stale", time.Since(start), len(cached))
			return cached, nil
		}
		metrics.RecordSync("error", time.Since(start), -1)
		return nil, err
	}

	merged := merge(cached, fetched)
	completedAt := time.Now()

	if err := e.cache.SaveSnapshot(ctx, &models.Snapshot{Timestamp: completedAt, Records: merged}); err != nil {
		// The merged list is still good; the next load just falls back to
		// a full sync.
		logging.Error("failed to persist snapshot", zap.Error(err))
		metrics.RecordStoreOp("save", false)
	} else {
		metrics.RecordStoreOp("save", true)
	}

	result := "incremental"
	if !haveCache {
		result = "full"
	}
	logging.Info("sync complete",
		zap.String("mode", result),
		zap.Int("cached", len(cached)),
		zap.Int("fetched", len(fetched)),
		zap.Int("merged", len(merged)),
		zap.Duration("took", time.Since(start)))
	metrics.RecordSync(result, time.Since(start), len(merged))
	return merged, nil
}

// fetchChanges follows the pagination cursor until exhausted or the cap.
func (e *Engine) fetchChanges(ctx context.Context, since time.Time) ([]models.FileRecord, error) {
	var fetched []models.FileRecord
	pageToken := ""

	for {
		page, err := e.lister.ListChangedSince(ctx, since, pageToken)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, page.Files...)

		if len(fetched) >= e.pageCap {
			if len(fetched) > e.pageCap {
				fetched = fetched[:e.pageCap]
			}
			if page.NextPageToken != "" {
				logging.Warn("remote listing truncated at cap",
					zap.Int("cap", e.pageCap))
				metrics.RecordListingTruncated()
			}
			return fetched, nil
		}
		if page.NextPageToken == "" {
			return fetched, nil
		}
		pageToken = page.NextPageToken
	}
}

// merge de-duplicates by id, preferring the fetched version. Cached records
// keep their relative order; new records append in fetch order.
func merge(cached, fetched []models.FileRecord) []models.FileRecord {
	out := make([]models.FileRecord, 0, len(cached)+len(fetched))
	index := make(map[string]int, len(cached))

	for _, r := range cached {
		if _, ok := index[r.ID]; ok {
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	for _, r := range fetched {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
