// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pixeltennis/pixeltennis/internal/remote"
)

// ErrOffline is returned by every call while the fake is offline.
var ErrOffline = errors.New("remotetest: offline")

// Fake is a remote.Store backed by maps. Fail hooks let tests inject
// errors per call.
type Fake struct {
	mu       sync.Mutex
	logs     map[string]remote.LogRow
	profiles map[string]remote.ProfileRow
	offline  bool
	calls    []string

	// FailUpsert, when set, is consulted before every log upsert.
	FailUpsert func(row remote.LogRow) error
	// FailDelete, when set, is consulted before every delete.
	FailDelete func(logID string) error
	// FailProfile, when set, is consulted before every profile update.
	FailProfile func(patch remote.ProfilePatch) error
}

var _ remote.Store = (*Fake)(nil)

// New returns an empty online fake.
func New() *Fake {
	return &Fake{
		logs:     make(map[string]remote.LogRow),
		profiles: make(map[string]remote.ProfileRow),
	}
}

// SetOffline toggles connectivity.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Calls returns the names of the calls made so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// PutLog seeds a row.
func (f *Fake) PutLog(row remote.LogRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[row.ID] = row
}

// PutProfile seeds a profile.
func (f *Fake) PutProfile(row remote.ProfileRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[row.ID] = row
}

// Log returns the stored row with id.
func (f *Fake) Log(id string) (remote.LogRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.logs[id]
	return row, ok
}

// LogCount returns the number of stored rows.
func (f *Fake) LogCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

// Profile returns the stored profile of userID.
func (f *Fake) Profile(userID string) (remote.ProfileRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.profiles[userID]
	return row, ok
}

func (f *Fake) begin(op string) error {
	f.calls = append(f.calls, op)
	if f.offline {
		return &remote.Error{Op: op, Err: ErrOffline}
	}
	return nil
}

func (f *Fake) UpsertLog(ctx context.Context, userID string, row remote.LogRow) error {
	return f.UpsertLogs(ctx, userID, []remote.LogRow{row})
}

func (f *Fake) UpsertLogs(_ context.Context, userID string, rows []remote.LogRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("upsert_logs"); err != nil {
		return err
	}
	for _, row := range rows {
		if f.FailUpsert != nil {
			if err := f.FailUpsert(row); err != nil {
				return &remote.Error{Op: "upsert_logs", Status: 500, Err: err}
			}
		}
	}
	for _, row := range rows {
		row.UserID = userID
		if prev, ok := f.logs[row.ID]; ok && !prev.CreatedAt.IsZero() {
			row.CreatedAt = prev.CreatedAt
		}
		f.logs[row.ID] = row
	}
	return nil
}

func (f *Fake) DeleteLog(_ context.Context, userID, logID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("delete_log"); err != nil {
		return err
	}
	if f.FailDelete != nil {
		if err := f.FailDelete(logID); err != nil {
			return &remote.Error{Op: "delete_log", Status: 500, Err: err}
		}
	}
	if row, ok := f.logs[logID]; ok && row.UserID == userID {
		delete(f.logs, logID)
	}
	return nil
}

func (f *Fake) UpdateProfile(_ context.Context, userID string, patch remote.ProfilePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("update_profile"); err != nil {
		return err
	}
	if f.FailProfile != nil {
		if err := f.FailProfile(patch); err != nil {
			return &remote.Error{Op: "update_profile", Status: 500, Err: err}
		}
	}
	row, ok := f.profiles[userID]
	if !ok {
		row = remote.ProfileRow{ID: userID, Level: 1}
	}
	row = patch.Apply(row)
	row.UpdatedAt = time.Now().UTC()
	f.profiles[userID] = row
	return nil
}

func (f *Fake) FetchLogs(_ context.Context, userID string) ([]remote.LogRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("fetch_logs"); err != nil {
		return nil, err
	}
	var rows []remote.LogRow
	for _, row := range f.logs {
		if row.UserID == userID {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date > rows[j].Date
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (f *Fake) FetchProfile(_ context.Context, userID string) (remote.ProfileRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("fetch_profile"); err != nil {
		return remote.ProfileRow{}, err
	}
	row, ok := f.profiles[userID]
	if !ok {
		return remote.ProfileRow{}, remote.ErrNotFound
	}
	return row, nil
}

func (f *Fake) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("ping")
}
