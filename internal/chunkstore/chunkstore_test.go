package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type rec struct {
	ID string `json:"id"`
	N  int    `json:"n"`
}

func testStore(t *testing.T, chunkSize int) *Store[rec] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	return New[rec](path, chunkSize, 140)
}

func makeRecords(n int) []rec {
	records := make([]rec, n)
	for i := range records {
		records[i] = rec{ID: fmt.Sprintf("id-%d", i), N: i}
	}
	return records
}

func TestStore_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 10000, 10001, 25000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := testStore(t, DefaultChunkSize)
			want := makeRecords(n)
			ts := time.Now()

			if err := s.Save(context.Background(), ts, want); err != nil {
				t.Fatalf("Save: %v", err)
			}

			gotTS, got, err := s.Load(context.Background())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != n {
				t.Fatalf("Load returned %d records, want %d", len(got), n)
			}
			seen := make(map[string]rec, len(got))
			for _, r := range got {
				seen[r.ID] = r
			}
			for _, w := range want {
				g, ok := seen[w.ID]
				if !ok {
					t.Fatalf("record %s missing after round trip", w.ID)
				}
				if g != w {
					t.Fatalf("record %s changed: got %+v, want %+v", w.ID, g, w)
				}
			}
			if gotTS.UnixNano() != ts.UnixNano() {
				t.Errorf("timestamp changed: got %v, want %v", gotTS, ts)
			}
		})
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	s := testStore(t, 10)
	if _, _, err := s.Load(context.Background()); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("Load on fresh store: got %v, want ErrCacheEmpty", err)
	}
	if _, err := s.Timestamp(context.Background()); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("Timestamp on fresh store: got %v, want ErrCacheEmpty", err)
	}
	// Load must not create the database file.
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("Load created the store file")
	}
}

func TestStore_SaveWithoutTimestamp(t *testing.T) {
	s := testStore(t, 10)
	err := s.Save(context.Background(), time.Time{}, makeRecords(3))
	if err == nil {
		t.Fatal("Save with zero timestamp succeeded")
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("got %T, want *PersistenceError", err)
	}
}

func TestStore_Timestamp(t *testing.T) {
	s := testStore(t, 10)
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := s.Save(context.Background(), ts, makeRecords(5)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Timestamp(context.Background())
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("got %v, want %v", got, ts)
	}
}

func TestStore_SchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	old := New[rec](path, 10, 130)
	if err := old.Save(context.Background(), time.Now(), makeRecords(3)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	upgraded := New[rec](path, 10, 140)
	if _, _, err := upgraded.Load(context.Background()); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("Load across schema bump: got %v, want ErrCacheEmpty", err)
	}
	if _, err := upgraded.Timestamp(context.Background()); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("Timestamp across schema bump: got %v, want ErrCacheEmpty", err)
	}
}

func TestStore_SaveReplacesSnapshot(t *testing.T) {
	s := testStore(t, 4)

	if err := s.Save(context.Background(), time.Now(), makeRecords(25)); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	// Smaller second snapshot must not leave trailing chunks from the first.
	if err := s.Save(context.Background(), time.Now(), makeRecords(3)); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	_, got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records after overwrite, want 3", len(got))
	}
}

func TestStore_Clear(t *testing.T) {
	s := testStore(t, 10)
	if err := s.Save(context.Background(), time.Now(), makeRecords(5)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("store file still exists after Clear")
	}
	if _, _, err := s.Load(context.Background()); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("Load after Clear: got %v, want ErrCacheEmpty", err)
	}
	// Clearing an already-cleared store is a no-op.
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
