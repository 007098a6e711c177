// Package chunkstore persists an arbitrarily large ordered record sequence
// in a single-file embedded database, split into bounded chunks so no single
// stored value outgrows the engine's comfortable record size.
package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/driveview/driveview/internal/logging"
)

// DefaultChunkSize is the number of records per chunk. Chosen to keep each
// stored value well under the size ceilings observed on constrained engines
// (~18k records per value).
const DefaultChunkSize = 10000

const (
	bucketName       = "records"
	keySchemaVersion = "schemaVersion"
	keyTimestamp     = "timeStamp"
	chunkKeyPrefix   = "records_"

	openTimeout = 2 * time.Second
)

// ErrCacheEmpty reports that the store holds no snapshot. It is the normal
// cache-miss path: callers fall back to a full sync, they do not abort.
var ErrCacheEmpty = errors.New("no cached snapshot")

// PersistenceError wraps a storage engine failure (transaction abort, locked
// database, I/O error). Never fatal to a calling flow: a failed save means
// the next load falls back to full sync.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chunkstore %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store persists snapshots of []T under one database file. A Store is scoped
// to a single logical collection of a single account; the file path carries
// that scoping. Safe for concurrent use within one process; across processes
// the database file lock serializes access and last write wins.
type Store[T any] struct {
	path          string
	chunkSize     int
	schemaVersion int
}

// New creates a store over the database file at path. A schema version
// mismatch found on load discards the stored snapshot (rebuild on next save).
func New[T any](path string, chunkSize, schemaVersion int) *Store[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store[T]{path: path, chunkSize: chunkSize, schemaVersion: schemaVersion}
}

// Path returns the database file path.
func (s *Store[T]) Path() string {
	return s.path
}

// Save writes timestamp and records as one transaction: the control record
// plus ceil(len/chunkSize) chunk records, all-or-nothing. An empty record
// list still writes one empty chunk so a deliberately empty snapshot is
// distinguishable from no cache.
func (s *Store[T]) Save(ctx context.Context, timestamp time.Time, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timestamp.IsZero() {
		return &PersistenceError{Op: "save", Path: s.path, Err: errors.New("refusing to save snapshot without timestamp")}
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return err
		}

		if err := b.Put([]byte(keySchemaVersion), []byte(strconv.Itoa(s.schemaVersion))); err != nil {
			return err
		}
		if err := b.Put([]byte(keyTimestamp), []byte(timestamp.UTC().Format(time.RFC3339Nano))); err != nil {
			return err
		}

		chunks := (len(records) + s.chunkSize - 1) / s.chunkSize
		if chunks == 0 {
			chunks = 1
		}
		for i := 0; i < chunks; i++ {
			lo := i * s.chunkSize
			hi := lo + s.chunkSize
			if hi > len(records) {
				hi = len(records)
			}
			payload, err := json.Marshal(records[lo:hi])
			if err != nil {
				return err
			}
			if err := b.Put([]byte(chunkKey(i)), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Load reads the snapshot back, concatenating chunk payloads in index order.
// Returns ErrCacheEmpty when no snapshot is present or the stored schema
// version does not match.
func (s *Store[T]) Load(ctx context.Context) (time.Time, []T, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return time.Time{}, nil, ErrCacheEmpty
	}

	db, err := s.open()
	if err != nil {
		return time.Time{}, nil, err
	}
	defer db.Close()

	var timestamp time.Time
	var records []T
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return ErrCacheEmpty
		}
		if v := b.Get([]byte(keySchemaVersion)); string(v) != strconv.Itoa(s.schemaVersion) {
			logging.Info("cached snapshot has stale schema, ignoring",
				zap.String("path", s.path),
				zap.String("stored", string(v)),
				zap.Int("expected", s.schemaVersion))
			return ErrCacheEmpty
		}

		ts := b.Get([]byte(keyTimestamp))
		if len(ts) == 0 {
			return ErrCacheEmpty
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(ts))
		if err != nil || parsed.IsZero() {
			return ErrCacheEmpty
		}
		timestamp = parsed

		chunks := 0
		for i := 0; ; i++ {
			payload := b.Get([]byte(chunkKey(i)))
			if payload == nil {
				break
			}
			var chunk []T
			if err := json.Unmarshal(payload, &chunk); err != nil {
				return err
			}
			records = append(records, chunk...)
			chunks++
		}
		if chunks == 0 {
			return ErrCacheEmpty
		}
		return nil
	})
	if errors.Is(err, ErrCacheEmpty) {
		return time.Time{}, nil, ErrCacheEmpty
	}
	if err != nil {
		return time.Time{}, nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return timestamp, records, nil
}

// Timestamp reads only the control record. Fast path for freshness display.
func (s *Store[T]) Timestamp(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return time.Time{}, ErrCacheEmpty
	}

	db, err := s.open()
	if err != nil {
		return time.Time{}, err
	}
	defer db.Close()

	var timestamp time.Time
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return ErrCacheEmpty
		}
		if v := b.Get([]byte(keySchemaVersion)); string(v) != strconv.Itoa(s.schemaVersion) {
			return ErrCacheEmpty
		}
		ts := b.Get([]byte(keyTimestamp))
		if len(ts) == 0 {
			return ErrCacheEmpty
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(ts))
		if err != nil || parsed.IsZero() {
			return ErrCacheEmpty
		}
		timestamp = parsed
		return nil
	})
	if errors.Is(err, ErrCacheEmpty) {
		return time.Time{}, ErrCacheEmpty
	}
	if err != nil {
		return time.Time{}, &PersistenceError{Op: "timestamp", Path: s.path, Err: err}
	}
	return timestamp, nil
}

// Clear deletes the database file. A database held open by another
// connection is logged and skipped, not surfaced; the caller must not assume
// the delete completed.
func (s *Store[T]) Clear() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	// Take the file lock first so we never unlink under a live writer.
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			logging.Warn("store in use by another connection, clear skipped",
				zap.String("path", s.path))
			return nil
		}
		return &PersistenceError{Op: "clear", Path: s.path, Err: err}
	}
	db.Close()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "clear", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store[T]) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: s.path, Err: err}
	}
	return db, nil
}

func chunkKey(i int) string {
	return chunkKeyPrefix + strconv.Itoa(i)
}
