package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/remote/remotetest"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/store"
)

type harness struct {
	engine *Engine
	store  *store.Store
	queue  *queue.Queue
	remote *remotetest.Fake
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()

	backend, err := kv.OpenFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	st, err := store.Open(ctx, store.Config{Backend: backend})
	require.NoError(t, err)
	q, err := queue.Open(ctx, queue.Config{Backend: backend})
	require.NoError(t, err)

	fake := remotetest.New()
	e, err := New(st, q, fake, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return &harness{engine: e, store: st, queue: q, remote: fake}
}

func session(id, date string, minutes int) schema.TrainingLog {
	return schema.TrainingLog{ID: id, Date: date, Type: schema.LogPractice, Duration: minutes}
}

func opKeys(ops []queue.Op) []string {
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, op.Key())
	}
	return keys
}

func TestOffline_MutationsOnlyEnqueue(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	_, err := h.engine.SaveLog(ctx, session("a", "2026-10-01", 60), schema.Stats{Forehand: 2})
	require.NoError(t, err)
	_, err = h.engine.DeleteLog(ctx, "a")
	require.NoError(t, err)

	ops := h.queue.Snapshot()
	require.Len(t, ops, 4)
	assert.Equal(t, queue.InsertLog, ops[0].Type)
	assert.Equal(t, queue.UpdateProfile, ops[1].Type)
	assert.Equal(t, queue.DeleteLog, ops[2].Type)
	assert.Equal(t, queue.UpdateProfile, ops[3].Type)
	assert.Empty(t, h.remote.Calls())

	st := h.engine.Status()
	assert.Equal(t, IndicatorOffline, st.Indicator)
	assert.Equal(t, 4, st.Pending)
}

func TestSignedOut_NothingQueued(t *testing.T) {
	h := newHarness(t, Config{Online: true})
	_, err := h.engine.SaveLog(context.Background(), session("a", "2026-10-01", 60), schema.Stats{Mental: 2})
	require.NoError(t, err)
	require.NoError(t, h.engine.Close())

	assert.Zero(t, h.queue.Len())
	assert.Empty(t, h.remote.Calls())
	assert.Len(t, h.store.Logs(), 1)

	res, err := h.engine.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestFlush_AllFailKeepsOrder(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := h.engine.SaveLog(ctx, session(id, "2026-10-01", 30), schema.Stats{Serve: 1})
		require.NoError(t, err)
	}
	before := h.queue.Snapshot()

	h.remote.SetOffline(true)
	res, err := h.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Attempted: 6, Failed: 6, Remaining: 6}, res)
	assert.Equal(t, before, h.queue.Snapshot())
}

func TestFlush_AllSucceedEmptiesQueue(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	_, err := h.engine.SaveLog(ctx, session("a", "2026-10-01", 90), schema.Stats{Serve: 3})
	require.NoError(t, err)
	edited := session("a", "2026-10-01", 100)
	edited.Note = "serve drills"
	_, err = h.engine.SaveLog(ctx, edited, schema.Stats{Volley: 3})
	require.NoError(t, err)

	res, err := h.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Succeeded)
	assert.Zero(t, res.Remaining)
	assert.Zero(t, h.queue.Len())

	row, ok := h.remote.Log("a")
	require.True(t, ok)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, 100, row.Duration)
	assert.Equal(t, schema.Stats{Volley: 3}, row.GainedStats)

	profile, ok := h.remote.Profile("user-1")
	require.True(t, ok)
	assert.Equal(t, 45, profile.Exp)
	assert.Equal(t, 4, profile.Stats.Volley)

	// flushing again has no remote effect
	calls := len(h.remote.Calls())
	res, err = h.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Len(t, h.remote.Calls(), calls)
}

func TestFlush_IsolatesFailures(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := h.engine.SaveLog(ctx, session(id, "2026-10-01", 30), schema.Stats{})
		require.NoError(t, err)
	}
	h.remote.FailUpsert = func(row remote.LogRow) error {
		if row.ID == "b" {
			return errors.New("check constraint")
		}
		return nil
	}

	res, err := h.engine.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"b"}, opKeys(h.queue.Snapshot()))
	_, ok := h.remote.Log("c")
	assert.True(t, ok)
}

func TestFlush_ConcurrentCallsDoNotDuplicate(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := h.engine.SaveLog(ctx, session(id, "2026-10-01", 30), schema.Stats{})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Flush(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	upserts := 0
	for _, c := range h.remote.Calls() {
		if c == "upsert_logs" {
			upserts++
		}
	}
	assert.Equal(t, 2, upserts)
	assert.Zero(t, h.queue.Len())
}

func TestSetOnline_TriggersFlush(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	_, err := h.engine.SaveLog(context.Background(), session("a", "2026-10-01", 30), schema.Stats{})
	require.NoError(t, err)
	require.Equal(t, 2, h.queue.Len())

	h.engine.SetOnline(true)
	require.Eventually(t, func() bool {
		_, ok := h.remote.Log("a")
		return ok && h.queue.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return h.engine.Status().Indicator == IndicatorSynced
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDirectSync(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1", Online: true})
	_, err := h.engine.SaveLog(context.Background(), session("a", "2026-10-01", 30), schema.Stats{Footwork: 1})
	require.NoError(t, err)

	require.NoError(t, h.engine.Close())
	_, ok := h.remote.Log("a")
	assert.True(t, ok)
	assert.Zero(t, h.queue.Len())
}

func TestDirectSync_FailureFallsBackToQueue(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1", Online: true})
	h.remote.FailUpsert = func(remote.LogRow) error { return errors.New("timeout") }

	_, err := h.engine.SaveLog(context.Background(), session("a", "2026-10-01", 30), schema.Stats{})
	require.NoError(t, err)
	require.NoError(t, h.engine.Close())

	ops := h.queue.Snapshot()
	require.NotEmpty(t, ops)
	assert.Equal(t, queue.InsertLog, ops[0].Type)
	assert.Equal(t, "a", ops[0].Key())
	_, ok := h.remote.Log("a")
	assert.False(t, ok)
}

func TestDirectSync_KeepsOrderBehindQueue(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1", Online: true})
	h.remote.SetOffline(true)
	ctx := context.Background()

	_, err := h.engine.SaveLog(ctx, session("a", "2026-10-01", 30), schema.Stats{})
	require.NoError(t, err)
	_, err = h.engine.SaveLog(ctx, session("b", "2026-10-02", 30), schema.Stats{})
	require.NoError(t, err)
	require.NoError(t, h.engine.Close())

	assert.Equal(t, []string{"a", "profile", "b", "profile"}, opKeys(h.queue.Snapshot()))
}

func TestDirectSync_GoingOfflineKeepsPendingOrder(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1", Online: true})
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.FailUpsert = func(row remote.LogRow) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	}

	_, err := h.engine.SaveLog(ctx, session("a", "2026-10-01", 30), schema.Stats{})
	require.NoError(t, err)
	<-entered

	// the insert of a is still in flight when the connection drops
	h.engine.SetOnline(false)
	_, err = h.engine.DeleteLog(ctx, "a")
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		return h.queue.Len() == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"profile", "a", "profile"}, opKeys(h.queue.Snapshot()))
	assert.Equal(t, queue.DeleteLog, h.queue.Snapshot()[1].Type)

	h.engine.SetOnline(true)
	require.NoError(t, h.engine.Close())

	assert.Zero(t, h.queue.Len())
	_, err = h.store.Log("a")
	assert.Error(t, err)
	_, ok := h.remote.Log("a")
	assert.False(t, ok, "a deleted locally must not survive on the remote")
}

func TestPullAndMerge(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	// 1 is local only, 2 is a stale copy of a synced log
	_, err := h.store.ApplyLogUpsert(ctx, session("1", "2026-10-03", 30), schema.Stats{Forehand: 1})
	require.NoError(t, err)
	_, err = h.store.ApplyLogUpsert(ctx, session("2", "2026-10-01", 30), schema.Stats{Backhand: 1})
	require.NoError(t, err)

	now := time.Now()
	updated := session("2", "2026-10-01", 80)
	updated.GainedStats = schema.Stats{Backhand: 2}
	newer := session("3", "2026-10-05", 45)
	newer.GainedStats = schema.Stats{Mental: 1}
	for _, l := range []schema.TrainingLog{updated, newer} {
		row, err := remote.FromLog("user-1", l, now)
		require.NoError(t, err)
		h.remote.PutLog(row)
	}
	h.remote.PutProfile(remote.ProfileRow{ID: "user-1", ProfileName: "jin"})

	res, err := h.engine.PullAndMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, store.MergeResult{Added: 1, Replaced: 1, LocalOnly: 1}, res.Merge)
	assert.True(t, res.ProfileUpdated)

	logs := h.store.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, "3", logs[0].ID)
	assert.Equal(t, "1", logs[1].ID)
	assert.Equal(t, "2", logs[2].ID)
	assert.Equal(t, 80, logs[2].Duration)

	p := h.store.Profile()
	assert.Equal(t, "jin", p.ProfileName)
	assert.Equal(t, schema.DefaultGearColor, p.GearColor)
	assert.Equal(t, 3, p.Stats.Backhand)
}

func TestPullAndMerge_RemoteDown(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()
	_, err := h.store.ApplyLogUpsert(ctx, session("1", "2026-10-03", 30), schema.Stats{})
	require.NoError(t, err)

	h.remote.SetOffline(true)
	_, err = h.engine.PullAndMerge(ctx)
	assert.ErrorIs(t, err, remotetest.ErrOffline)
	assert.Len(t, h.store.Logs(), 1)
}

func TestLevelUpEvent(t *testing.T) {
	h := newHarness(t, Config{})
	events, unsubscribe := h.engine.Subscribe(4)
	defer unsubscribe()

	res, err := h.engine.SaveLog(context.Background(), session("a", "2026-10-01", 480), schema.Stats{Serve: 3})
	require.NoError(t, err)
	require.Equal(t, 2, res.LevelsGained)

	select {
	case ev := <-events:
		assert.Equal(t, EventLevelUp, ev.Type)
		assert.Equal(t, 3, ev.Level)
	case <-time.After(time.Second):
		t.Fatal("no level_up event")
	}
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t, Config{UserID: "user-1"})
	ctx := context.Background()

	name := "jin"
	p, err := h.engine.UpdateProfile(ctx, store.ProfileUpdate{ProfileName: &name})
	require.NoError(t, err)
	assert.Equal(t, "jin", p.ProfileName)

	ops := h.queue.Snapshot()
	require.Len(t, ops, 1)
	patch, err := ops[0].ProfilePatch()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"profile_name": "jin"}, patch.Columns())

	_, err = h.engine.Flush(ctx)
	require.NoError(t, err)
	row, ok := h.remote.Profile("user-1")
	require.True(t, ok)
	assert.Equal(t, "jin", row.ProfileName)
}
