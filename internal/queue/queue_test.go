package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

func newBackend(t *testing.T) kv.Backend {
	t.Helper()
	b, err := kv.OpenFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func clock() func() time.Time {
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func openQueue(t *testing.T, backend kv.Backend) *Queue {
	t.Helper()
	q, err := Open(context.Background(), Config{Backend: backend, Now: clock()})
	require.NoError(t, err)
	return q
}

func deleteOp(t *testing.T, id string) Op {
	t.Helper()
	op, err := NewDeleteOp(id)
	require.NoError(t, err)
	return op
}

func ids(t *testing.T, ops []Op) []string {
	t.Helper()
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Key())
	}
	return out
}

func fill(t *testing.T, q *Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(context.Background(), deleteOp(t, fmt.Sprintf("op-%d", i))))
	}
}

func TestDrainSucceeded_AllFail(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, newBackend(t))
	fill(t, q, 5)
	before := q.Snapshot()

	failed := errors.New("offline")
	n, err := q.DrainSucceeded(ctx, []error{failed, failed, failed, failed, failed})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, before, q.Snapshot())
}

func TestDrainSucceeded_AllSucceed(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	q := openQueue(t, backend)
	fill(t, q, 4)

	n, err := q.DrainSucceeded(ctx, make([]error, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, openQueue(t, backend).Len())
}

func TestDrainSucceeded_KeepsFailuresInOrder(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, newBackend(t))
	fill(t, q, 5)

	failed := errors.New("500")
	_, err := q.DrainSucceeded(ctx, []error{nil, failed, nil, failed})
	require.NoError(t, err)
	assert.Equal(t, []string{"op-1", "op-3", "op-4"}, ids(t, q.Snapshot()))
}

func TestDrainSucceeded_Mismatch(t *testing.T) {
	q := openQueue(t, newBackend(t))
	fill(t, q, 1)
	_, err := q.DrainSucceeded(context.Background(), make([]error, 2))
	assert.ErrorIs(t, err, ErrResultMismatch)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_SurvivesRestart(t *testing.T) {
	backend := newBackend(t)
	q := openQueue(t, backend)
	fill(t, q, 3)

	reopened := openQueue(t, backend)
	assert.Equal(t, []string{"op-0", "op-1", "op-2"}, ids(t, reopened.Snapshot()))
	assert.Equal(t, q.Snapshot(), reopened.Snapshot())
}

func TestQueue_CorruptStartsEmpty(t *testing.T) {
	backend := newBackend(t)
	require.NoError(t, backend.Put(context.Background(), QueueKey, []byte("[{")))
	q := openQueue(t, backend)
	assert.Zero(t, q.Len())
}

func TestQueue_SharedBackend(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	daemon := openQueue(t, backend)
	cli := openQueue(t, backend)

	fill(t, daemon, 2)
	attempted := daemon.Len()

	// another process enqueues while the flush is in flight
	require.NoError(t, cli.Enqueue(ctx, deleteOp(t, "late")))

	_, err := daemon.DrainSucceeded(ctx, make([]error, attempted))
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, ids(t, daemon.Snapshot()))

	require.NoError(t, cli.Reload(ctx))
	assert.Equal(t, []string{"late"}, ids(t, cli.Snapshot()))
}

func TestQueue_ConcurrentWritersAcrossHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	open := func() *Queue {
		b, err := kv.OpenFile(dir)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return openQueue(t, b)
	}
	daemon, cli := open(), open()
	fill(t, daemon, 3)
	attempted := daemon.Len()
	var late []Op
	for i := range 10 {
		late = append(late, deleteOp(t, fmt.Sprintf("cli-%d", i)))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, op := range late {
			assert.NoError(t, cli.Enqueue(ctx, op))
		}
	}()
	go func() {
		defer wg.Done()
		_, err := daemon.DrainSucceeded(ctx, make([]error, attempted))
		assert.NoError(t, err)
	}()
	wg.Wait()

	require.NoError(t, daemon.Reload(ctx))
	got := ids(t, daemon.Snapshot())
	assert.Len(t, got, 10)
	for i := range 10 {
		assert.Contains(t, got, fmt.Sprintf("cli-%d", i))
	}
}

func TestEnqueue_RejectsUnknownType(t *testing.T) {
	q := openQueue(t, newBackend(t))
	err := q.Enqueue(context.Background(), Op{Type: "PATCH_LOG"})
	assert.Error(t, err)
	assert.Zero(t, q.Len())
}

func TestOpPayloads(t *testing.T) {
	l := schema.TrainingLog{
		ID: "a", Date: "2026-10-01", Type: schema.LogLesson, Duration: 60,
		GainedStats: schema.Stats{Forehand: 2},
		Details:     &schema.SessionDetails{Tags: []string{"서브"}},
	}
	op, err := NewLogOp(InsertLog, l)
	require.NoError(t, err)
	assert.Equal(t, "a", op.Key())

	got, err := op.Log()
	require.NoError(t, err)
	assert.Equal(t, l, got)

	_, err = op.DeleteID()
	assert.Error(t, err)

	_, err = NewLogOp(DeleteLog, l)
	assert.Error(t, err)

	name := "jin"
	op, err = NewProfileOp(remote.ProfilePatch{ProfileName: &name})
	require.NoError(t, err)
	assert.Equal(t, "profile", op.Key())
	patch, err := op.ProfilePatch()
	require.NoError(t, err)
	require.NotNil(t, patch.ProfileName)
	assert.Equal(t, "jin", *patch.ProfileName)
	assert.Nil(t, patch.GearColor)

	id, err := deleteOp(t, "gone").DeleteID()
	require.NoError(t, err)
	assert.Equal(t, "gone", id)
}
