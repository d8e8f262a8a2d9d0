package daemon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/remote/remotetest"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/store"
	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

type fixture struct {
	dir    string
	engine *syncengine.Engine
	store  *store.Store
	queue  *queue.Queue
	remote *remotetest.Fake
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupFixture opens a file-backed journal in a temp dir with a fake remote.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := kv.OpenFile(dir)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	st, err := store.Open(ctx, store.Config{Backend: backend, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	q, err := queue.Open(ctx, queue.Config{Backend: backend, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to open queue: %v", err)
	}

	fake := remotetest.New()
	eng, err := syncengine.New(st, q, fake, syncengine.Config{UserID: "user-1", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	return &fixture{dir: dir, engine: eng, store: st, queue: q, remote: fake}
}

func testConfig(dir string) Config {
	return Config{
		DataDir:          dir,
		ProbeInterval:    20 * time.Millisecond,
		ProbeTimeout:     time.Second,
		InitialBackoff:   10 * time.Millisecond,
		MaxBackoff:       50 * time.Millisecond,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           quietLogger(),
	}
}

// startDaemon runs d until the test ends and waits for it to be ready.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	select {
	case <-d.Ready():
	case err := <-done:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	f := setupFixture(t)

	tests := []struct {
		name    string
		engine  *syncengine.Engine
		dir     string
		wantErr bool
	}{
		{name: "valid", engine: f.engine, dir: f.dir},
		{name: "nil engine", engine: nil, dir: f.dir, wantErr: true},
		{name: "empty dir", engine: f.engine, dir: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.engine, f.store, f.queue, f.remote, testConfig(tt.dir))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				_ = d.Stop()
			}
		})
	}
}

func TestDefaultsApplied(t *testing.T) {
	f := setupFixture(t)
	d, err := New(f.engine, f.store, f.queue, f.remote, Config{DataDir: f.dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer d.Stop()

	def := DefaultConfig()
	if d.config.ProbeInterval != def.ProbeInterval {
		t.Errorf("ProbeInterval = %v, want %v", d.config.ProbeInterval, def.ProbeInterval)
	}
	if d.config.DebounceInterval != def.DebounceInterval {
		t.Errorf("DebounceInterval = %v, want %v", d.config.DebounceInterval, def.DebounceInterval)
	}
	if d.logger == nil {
		t.Error("logger not set")
	}
}

func TestStartPullsAndFlushes(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	row, err := remote.FromLog("user-1", schema.TrainingLog{
		ID: "from-remote", Date: "2026-09-30", Type: schema.LogLesson, Duration: 60,
		GainedStats: schema.Stats{Forehand: 2},
	}, time.Now())
	if err != nil {
		t.Fatalf("FromLog() error = %v", err)
	}
	f.remote.PutLog(row)

	if _, err := f.engine.SaveLog(ctx, schema.TrainingLog{ID: "local", Date: "2026-10-01", Type: schema.LogPractice, Duration: 30}, schema.Stats{Serve: 1}); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}
	if f.queue.Len() != 2 {
		t.Fatalf("queue length = %d, want 2", f.queue.Len())
	}

	d, err := New(f.engine, f.store, f.queue, f.remote, testConfig(f.dir))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startDaemon(t, d)

	if !f.engine.Online() {
		t.Error("engine should be online after a successful probe")
	}
	waitFor(t, "queue to drain", func() bool { return f.queue.Len() == 0 })
	if _, ok := f.remote.Log("local"); !ok {
		t.Error("local log was not uploaded")
	}
	if _, err := f.store.Log("from-remote"); err != nil {
		t.Errorf("remote log was not merged: %v", err)
	}
}

func TestFlushesWhenAnotherProcessEnqueues(t *testing.T) {
	f := setupFixture(t)

	d, err := New(f.engine, f.store, f.queue, f.remote, testConfig(f.dir))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startDaemon(t, d)

	// a second process shares the data directory through its own backend
	other, err := kv.OpenFile(f.dir)
	if err != nil {
		t.Fatalf("Failed to open second backend: %v", err)
	}
	defer other.Close()
	q2, err := queue.Open(context.Background(), queue.Config{Backend: other, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to open second queue: %v", err)
	}

	op, err := queue.NewLogOp(queue.InsertLog, schema.TrainingLog{ID: "elsewhere", Date: "2026-10-02", Type: schema.LogGame, Duration: 45})
	if err != nil {
		t.Fatalf("NewLogOp() error = %v", err)
	}
	if err := q2.Enqueue(context.Background(), op); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, "remote to receive the log", func() bool {
		_, ok := f.remote.Log("elsewhere")
		return ok
	})
	waitFor(t, "queue to drain", func() bool { return f.queue.Len() == 0 })
}

func TestProbeTracksReachability(t *testing.T) {
	f := setupFixture(t)

	d, err := New(f.engine, f.store, f.queue, f.remote, testConfig(f.dir))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "online", f.engine.Online)

	f.remote.SetOffline(true)
	waitFor(t, "offline", func() bool { return !f.engine.Online() })

	f.remote.SetOffline(false)
	waitFor(t, "back online", f.engine.Online)
}

func TestStartsOfflineWhenRemoteDown(t *testing.T) {
	f := setupFixture(t)
	f.remote.SetOffline(true)

	cfg := testConfig(f.dir)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	d, err := New(f.engine, f.store, f.queue, f.remote, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startDaemon(t, d)

	if f.engine.Online() {
		t.Error("engine should stay offline")
	}
	for _, c := range f.remote.Calls() {
		if c == "fetch_logs" {
			t.Error("pull should not run while offline")
		}
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/data/pixel-tennis-data-v1.json", true},
		{"/data/pixel-tennis-sync-queue.json", true},
		{"/data/pixeltennis.db", true},
		{"/data/pixeltennis.db-wal", true},
		{"/data/pixeltennis.db-shm", false},
		{"/data/.lock", false},
		{"/data/pixel-tennis-data-v1.json.1234.tmp", false},
		{"/data/export.json.backup.20261001-120000", false},
		{"/data/pt.log", false},
	}

	for _, tt := range tests {
		if got := relevant(tt.name); got != tt.want {
			t.Errorf("relevant(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
