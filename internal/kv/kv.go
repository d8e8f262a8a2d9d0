// Package kv provides the durable key/value storage under the local store
// and the sync queue.
//
// Two backends are available:
//   - SQLite (default): one row per key in an embedded database running in
//     WAL mode, so the daemon and CLI invocations can share it.
//   - File: one JSON file per key, replaced atomically and guarded by an
//     advisory lock across processes.
//
// Values are opaque bytes; callers own the encoding.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned by Get for keys that were never written or were
// deleted.
var ErrNotFound = errors.New("kv: key not found")

// Backend stores values by key.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value for key. The write is durable when Put
	// returns nil.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Update replaces the value for key with fn's result while holding the
	// backend's write lock, so read-modify-write cycles from other
	// processes cannot interleave. fn gets nil when key is missing. When fn
	// returns an error nothing is written and Update returns it.
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error

	// Close releases the backend.
	Close() error
}

// Kind selects a backend implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindFile   Kind = "file"
)

// SQLiteFilename is the database file name inside the data directory.
const SQLiteFilename = "pixeltennis.db"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateKey rejects keys that could escape a directory or collide with
// backend bookkeeping files.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// Open opens the backend of the given kind rooted at dataDir.
func Open(kind Kind, dataDir string) (Backend, error) {
	switch kind {
	case KindSQLite, "":
		return OpenSQLite(filepath.Join(dataDir, SQLiteFilename))
	case KindFile:
		return OpenFile(dataDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q (want sqlite or file)", kind)
}
