package gormstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name), Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func row(t *testing.T, id, date string, minutes int) remote.LogRow {
	t.Helper()
	r, err := remote.FromLog("ignored", schema.TrainingLog{
		ID: id, Date: date, Type: schema.LogLesson, Duration: minutes,
		GainedStats: schema.Stats{Forehand: 1},
		Details:     &schema.SessionDetails{Tags: []string{"포핸드"}},
	}, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return r
}

func TestUpsertAndFetchLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertLogs(ctx, "user-1", []remote.LogRow{
		row(t, "a", "2026-10-01", 30),
		row(t, "b", "2026-10-03", 45),
	}))
	require.NoError(t, s.UpsertLog(ctx, "user-2", row(t, "c", "2026-10-02", 60)))

	rows, err := s.FetchLogs(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, "user-1", rows[0].UserID)
	assert.Equal(t, schema.Stats{Forehand: 1}, rows[0].GainedStats)

	l := rows[0].ToLog()
	tags, ok := l.Details.(*schema.SessionDetails)
	require.True(t, ok)
	assert.Equal(t, []string{"포핸드"}, tags.Tags)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := row(t, "a", "2026-10-01", 30)
	require.NoError(t, s.UpsertLog(ctx, "user-1", r))
	require.NoError(t, s.UpsertLog(ctx, "user-1", r))

	r.Duration = 90
	require.NoError(t, s.UpsertLog(ctx, "user-1", r))

	rows, err := s.FetchLogs(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 90, rows[0].Duration)
}

func TestUpsertDoesNotStealRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertLog(ctx, "owner", row(t, "a", "2026-10-01", 30)))
	intruder := row(t, "a", "2026-10-01", 480)
	require.NoError(t, s.UpsertLog(ctx, "intruder", intruder))

	rows, err := s.FetchLogs(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 30, rows[0].Duration)

	rows, err = s.FetchLogs(ctx, "intruder")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertLog(ctx, "user-1", row(t, "a", "2026-10-01", 30)))

	// wrong owner is a no-op
	require.NoError(t, s.DeleteLog(ctx, "user-2", "a"))
	rows, err := s.FetchLogs(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, s.DeleteLog(ctx, "user-1", "a"))
	require.NoError(t, s.DeleteLog(ctx, "user-1", "a"))
	rows, err = s.FetchLogs(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.FetchProfile(ctx, "user-1")
	assert.True(t, errors.Is(err, remote.ErrNotFound))

	name := "jin"
	require.NoError(t, s.UpdateProfile(ctx, "user-1", remote.ProfilePatch{ProfileName: &name}))

	p, err := s.FetchProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jin", p.ProfileName)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, schema.DefaultGearColor, p.GearColor)
	assert.Len(t, p.InviteCode, 8)
	assert.False(t, p.UpdatedAt.IsZero())

	level, stats := 4, schema.Stats{Forehand: 5, Backhand: 2, Serve: 1, Volley: 1, Footwork: 3, Mental: 1}
	require.NoError(t, s.UpdateProfile(ctx, "user-1", remote.ProfilePatch{Level: &level, Stats: &stats}))

	p, err = s.FetchProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jin", p.ProfileName)
	assert.Equal(t, 4, p.Level)
	assert.Equal(t, stats, p.Stats)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
