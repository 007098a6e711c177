package syncengine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/driveview/driveview/internal/filecache"
	"github.com/driveview/driveview/internal/models"
	"github.com/driveview/driveview/internal/remote"
)

// fakeLister serves a fixed record set in pages, recording the lower bounds
// it was queried with.
type fakeLister struct {
	files    []models.FileRecord
	pageSize int
	err      error

	calls  int
	bounds []time.Time
}

func (f *fakeLister) ListChangedSince(ctx context.Context, modifiedAfter time.Time, pageToken string) (*remote.Page, error) {
	f.calls++
	if pageToken == "" {
		f.bounds = append(f.bounds, modifiedAfter)
	}
	if f.err != nil {
		return nil, f.err
	}

	eligible := f.files
	if !modifiedAfter.IsZero() {
		eligible = nil
		for _, r := range f.files {
			if r.ModifiedTime.After(modifiedAfter) {
				eligible = append(eligible, r)
			}
		}
	}

	size := f.pageSize
	if size <= 0 {
		size = 100
	}
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	end := start + size
	if end > len(eligible) {
		end = len(eligible)
	}

	page := &remote.Page{Files: eligible[start:end]}
	if end < len(eligible) {
		page.NextPageToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func record(id, name string, modified time.Time) models.FileRecord {
	return models.FileRecord{
		ID:           id,
		Name:         name,
		MimeType:     "image/jpeg",
		ModifiedTime: modified,
	}
}

func manyRecords(n int, modified time.Time) []models.FileRecord {
	records := make([]models.FileRecord, n)
	for i := range records {
		records[i] = record(fmt.Sprintf("id-%d", i), fmt.Sprintf("f%d.jpg", i), modified)
	}
	return records
}

func testCache(t *testing.T) *filecache.Cache {
	t.Helper()
	c, err := filecache.New(t.TempDir(), "alice@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("filecache.New: %v", err)
	}
	return c
}

func asSet(records []models.FileRecord) map[string]models.FileRecord {
	set := make(map[string]models.FileRecord, len(records))
	for _, r := range records {
		set[r.ID] = r
	}
	return set
}

func TestSync_CacheMissDoesFullSync(t *testing.T) {
	cache := testCache(t)
	lister := &fakeLister{files: manyRecords(7, time.Now().Add(-time.Hour))}
	e := New(cache, lister, 0)

	got, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d records, want 7", len(got))
	}
	if len(lister.bounds) != 1 || !lister.bounds[0].IsZero() {
		t.Errorf("full sync must use an unbounded lower bound, got %v", lister.bounds)
	}

	snap, err := cache.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot after sync: %v", err)
	}
	if snap.Timestamp.IsZero() {
		t.Error("persisted snapshot has zero timestamp")
	}
	if len(snap.Records) != 7 {
		t.Errorf("persisted %d records, want 7", len(snap.Records))
	}
}

func TestSync_Idempotent(t *testing.T) {
	cache := testCache(t)
	lister := &fakeLister{files: manyRecords(5, time.Now().Add(-time.Hour))}
	e := New(cache, lister, 0)

	first, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	firstTS, err := cache.Timestamp(context.Background())
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}

	second, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	firstSet, secondSet := asSet(first), asSet(second)
	if len(firstSet) != len(secondSet) {
		t.Fatalf("set sizes differ: %d vs %d", len(firstSet), len(secondSet))
	}
	for id, r := range firstSet {
		if !reflect.DeepEqual(secondSet[id], r) {
			t.Errorf("record %s changed between syncs", id)
		}
	}

	// Second sync must use the first sync's completion instant as lower bound.
	if len(lister.bounds) != 2 {
		t.Fatalf("got %d listing rounds, want 2", len(lister.bounds))
	}
	if !lister.bounds[1].Equal(firstTS) {
		t.Errorf("second sync lower bound = %v, want %v", lister.bounds[1], firstTS)
	}
}

func TestSync_MergePrefersFetched(t *testing.T) {
	cache := testCache(t)
	old := time.Now().Add(-2 * time.Hour)

	seed := &models.Snapshot{
		Timestamp: time.Now().Add(-time.Hour),
		Records: []models.FileRecord{
			record("A", "old", old),
			record("B", "keep", old),
		},
	}
	if err := cache.SaveSnapshot(context.Background(), seed); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	lister := &fakeLister{files: []models.FileRecord{record("A", "new", time.Now())}}
	e := New(cache, lister, 0)

	got, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	set := asSet(got)
	if len(set) != 2 {
		t.Fatalf("got %d unique records, want 2", len(set))
	}
	if set["A"].Name != "new" {
		t.Errorf("record A name = %q, want new", set["A"].Name)
	}
	if set["B"].Name != "keep" {
		t.Errorf("record B name = %q, want keep", set["B"].Name)
	}
}

func TestSync_StaleOnRemoteFailure(t *testing.T) {
	cache := testCache(t)
	seed := &models.Snapshot{
		Timestamp: time.Now().Add(-time.Hour),
		Records:   manyRecords(4, time.Now().Add(-2*time.Hour)),
	}
	if err := cache.SaveSnapshot(context.Background(), seed); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	lister := &fakeLister{err: errors.New("network down")}
	e := New(cache, lister, 0)

	got, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync must degrade to stale cache, got error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records, want the 4 cached ones", len(got))
	}
}

func TestSync_ErrorWithoutCache(t *testing.T) {
	cache := testCache(t)
	lister := &fakeLister{err: errors.New("network down")}
	e := New(cache, lister, 0)

	if _, err := e.Sync(context.Background()); err == nil {
		t.Fatal("Sync with no cache and no remote must fail")
	}
}

func TestSync_PaginationCap(t *testing.T) {
	cache := testCache(t)
	lister := &fakeLister{
		files:    manyRecords(15000, time.Now().Add(-time.Hour)),
		pageSize: 1000,
	}
	e := New(cache, lister, 10000)

	got, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(got) != 10000 {
		t.Fatalf("got %d records, want capped 10000", len(got))
	}
	// 10 pages of 1000, then the listing is abandoned.
	if lister.calls != 10 {
		t.Errorf("remote called %d times, want 10", lister.calls)
	}
}

func TestMerge_DropsDuplicateCachedIDs(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	merged := merge(
		[]models.FileRecord{record("A", "one", old), record("A", "two", old)},
		nil,
	)
	if len(merged) != 1 {
		t.Fatalf("got %d records, want 1", len(merged))
	}
}
