// Package remote defines the contract between the sync engine and the
// relational backend that mirrors each user's journal.
//
// The backend holds two resources:
//   - profiles, keyed by user id
//   - training_logs, keyed by log id and owned by a user id
//
// Implementations must make UpsertLog/UpsertLogs idempotent by log id and
// DeleteLog idempotent; the sync engine relies on both to retry freely.
// Reads may be eventually consistent.
//
// Two implementations live in subpackages: gormstore talks to Postgres
// directly and httpremote talks to the REST API served by pt serve.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("remote: not found")

// Store is the remote backend contract.
type Store interface {
	// UpsertLog inserts or replaces one log owned by userID.
	UpsertLog(ctx context.Context, userID string, row LogRow) error

	// UpsertLogs inserts or replaces a batch of logs in one request.
	UpsertLogs(ctx context.Context, userID string, rows []LogRow) error

	// DeleteLog removes the log with logID if userID owns it. Missing logs
	// are not an error.
	DeleteLog(ctx context.Context, userID, logID string) error

	// UpdateProfile applies a partial update and stamps updated_at.
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error

	// FetchLogs returns every log owned by userID, newest date first.
	FetchLogs(ctx context.Context, userID string) ([]LogRow, error)

	// FetchProfile returns the profile of userID or ErrNotFound.
	FetchProfile(ctx context.Context, userID string) (ProfileRow, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Error describes a failed remote call.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
