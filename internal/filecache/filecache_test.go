package filecache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driveview/driveview/internal/chunkstore"
	"github.com/driveview/driveview/internal/models"
)

func testRecords(ids ...string) []models.FileRecord {
	records := make([]models.FileRecord, len(ids))
	for i, id := range ids {
		records[i] = models.FileRecord{
			ID:           id,
			Name:         id + ".jpg",
			MimeType:     "image/jpeg",
			Size:         1024,
			ModifiedTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}
	}
	return records
}

func TestCache_SaveLoad(t *testing.T) {
	c, err := New(t.TempDir(), "alice@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := &models.Snapshot{
		Timestamp: time.Now(),
		Records:   testRecords("a", "b", "c"),
	}
	if err := c.SaveSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := c.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(got.Records))
	}
	if got.Timestamp.UnixNano() != snap.Timestamp.UnixNano() {
		t.Errorf("timestamp mismatch: got %v, want %v", got.Timestamp, snap.Timestamp)
	}

	ts, err := c.Timestamp(context.Background())
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if ts.UnixNano() != snap.Timestamp.UnixNano() {
		t.Errorf("Timestamp fast path mismatch: got %v, want %v", ts, snap.Timestamp)
	}
}

func TestCache_MissIsErrCacheEmpty(t *testing.T) {
	c, err := New(t.TempDir(), "alice@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.LoadSnapshot(context.Background()); !errors.Is(err, chunkstore.ErrCacheEmpty) {
		t.Fatalf("got %v, want ErrCacheEmpty", err)
	}
}

func TestCache_AccountIsolation(t *testing.T) {
	dir := t.TempDir()
	alice, err := New(dir, "alice@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("New alice: %v", err)
	}
	bob, err := New(dir, "bob@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("New bob: %v", err)
	}

	snap := &models.Snapshot{Timestamp: time.Now(), Records: testRecords("a")}
	if err := alice.SaveSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if _, err := bob.LoadSnapshot(context.Background()); !errors.Is(err, chunkstore.ErrCacheEmpty) {
		t.Fatalf("bob sees alice's snapshot: %v", err)
	}
}

func TestCache_RejectsUnevaluatedAccount(t *testing.T) {
	for _, account := range []string{
		"function getUserName() { [native code] }",
		"() => user.name",
		"",
	} {
		if _, err := New(t.TempDir(), account, "", 0, 140); err == nil {
			t.Errorf("New accepted account %q", account)
		}
	}
}

func TestCache_Clear(t *testing.T) {
	c, err := New(t.TempDir(), "alice@example.com", "", 0, 140)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap := &models.Snapshot{Timestamp: time.Now(), Records: testRecords("a")}
	if err := c.SaveSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.LoadSnapshot(context.Background()); !errors.Is(err, chunkstore.ErrCacheEmpty) {
		t.Fatalf("LoadSnapshot after Clear: got %v, want ErrCacheEmpty", err)
	}
}

func TestSweepMalformed(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "function_getUserName_mediafiles.db")
	healthy := filepath.Join(dir, "alice_example.com_mediafiles.db")
	for _, path := range []string{malformed, healthy} {
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	SweepMalformed(dir)

	if _, err := os.Stat(malformed); !os.IsNotExist(err) {
		t.Error("malformed store survived sweep")
	}
	if _, err := os.Stat(healthy); err != nil {
		t.Errorf("healthy store removed by sweep: %v", err)
	}
}
