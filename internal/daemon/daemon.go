// Package daemon keeps a journal synchronized in the background.
//
// The daemon:
//  1. Probes the remote and drives the engine's online state, backing off
//     exponentially while the remote is unreachable
//  2. Pulls and merges remote logs once at start
//  3. Watches the data directory so that operations queued by other pt
//     processes are reloaded and flushed after a short debounce
//  4. Forwards engine events to the status server when one is configured
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/status"
	"github.com/pixeltennis/pixeltennis/internal/store"
	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

// Config holds configuration for the daemon.
type Config struct {
	// DataDir is the directory holding the journal and the queue.
	DataDir string

	// ProbeInterval is how often the remote is pinged while online.
	ProbeInterval time.Duration

	// ProbeTimeout bounds one ping.
	ProbeTimeout time.Duration

	// InitialBackoff and MaxBackoff shape the retry delay while offline.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// DebounceInterval is how long a file must be quiet before it is
	// reloaded. This batches the writes of one save together.
	DebounceInterval time.Duration

	// Status receives engine events when set.
	Status *status.Server

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:    30 * time.Second,
		ProbeTimeout:     5 * time.Second,
		InitialBackoff:   time.Second,
		MaxBackoff:       5 * time.Minute,
		DebounceInterval: 250 * time.Millisecond,
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = def.ProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = def.DebounceInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "daemon")
	}
}

// Daemon runs the background loops for one engine.
type Daemon struct {
	engine *syncengine.Engine
	store  *store.Store
	queue  *queue.Queue
	remote remote.Store
	config Config
	logger *slog.Logger

	watcher   *fsnotify.Watcher
	changes   map[string]time.Time
	changesMu sync.Mutex

	unsubscribe func()
	ready       chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon. rs may be nil, in which case the engine stays
// offline and only file watching runs.
func New(eng *syncengine.Engine, st *store.Store, q *queue.Queue, rs remote.Store, cfg Config) (*Daemon, error) {
	if eng == nil || st == nil || q == nil {
		return nil, errors.New("engine, store and queue are required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory cannot be empty")
	}
	cfg.setDefaults()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		engine:  eng,
		store:   st,
		queue:   q,
		remote:  rs,
		config:  cfg,
		logger:  cfg.Logger,
		watcher: watcher,
		changes: make(map[string]time.Time),
		ready:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("daemon_starting", "data_dir", d.config.DataDir, "user", d.engine.UserID())

	if d.config.Status != nil {
		events, unsubscribe := d.engine.Subscribe(64)
		d.unsubscribe = unsubscribe
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.config.Status.Forward(d.ctx, events)
		}()
	}

	if d.remote != nil {
		d.engine.SetOnline(d.ping(ctx) == nil)
	}
	if d.engine.Online() && d.engine.UserID() != "" {
		// Queued edits go out first so the pull does not replace them
		// with older remote copies.
		if _, err := d.engine.Flush(ctx); err != nil {
			d.logger.Warn("initial_flush_failed", "err", err)
		}
		if res, err := d.engine.PullAndMerge(ctx); err != nil {
			d.logger.Warn("initial_pull_failed", "err", err)
		} else {
			d.logger.Info("initial_pull_complete", "fetched", res.Fetched, "added", res.Merge.Added)
		}
	}

	if err := d.watcher.Add(d.config.DataDir); err != nil {
		_ = d.Stop()
		return fmt.Errorf("failed to watch data directory: %w", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChanges()
	if d.remote != nil {
		d.wg.Add(1)
		go d.probeLoop()
	}
	close(d.ready)
	d.logger.Info("daemon_started", "online", d.engine.Online())

	select {
	case <-ctx.Done():
		d.logger.Info("daemon_shutdown_requested")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Ready is closed once the watcher and the background loops are running.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Stop shuts the daemon down and waits for its loops.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.cancel()
		if err := d.watcher.Close(); err != nil {
			d.logger.Warn("watcher_close_failed", "err", err)
		}
		if d.unsubscribe != nil {
			d.unsubscribe()
		}
		d.wg.Wait()
		d.logger.Info("daemon_stopped")
	})
	return nil
}

func (d *Daemon) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
	defer cancel()
	return d.remote.Ping(ctx)
}

// probeLoop pings on a fixed interval while online and with exponential
// backoff while offline.
func (d *Daemon) probeLoop() {
	defer d.wg.Done()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = d.config.InitialBackoff
	retry.MaxInterval = d.config.MaxBackoff
	retry.Multiplier = 2.0
	retry.RandomizationFactor = 0.2
	retry.MaxElapsedTime = 0

	for {
		wait := d.config.ProbeInterval
		if !d.engine.Online() {
			wait = retry.NextBackOff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := d.ping(d.ctx)
		if d.ctx.Err() != nil {
			return
		}
		if err != nil {
			if d.engine.Online() {
				d.logger.Warn("remote_unreachable", "err", err)
			} else {
				d.logger.Debug("remote_still_unreachable", "err", err)
			}
			d.engine.SetOnline(false)
			continue
		}
		retry.Reset()
		d.engine.SetOnline(true)
	}
}

// relevant reports whether a file in the data directory holds journal or
// queue state.
func relevant(name string) bool {
	base := filepath.Base(name)
	switch {
	case strings.HasPrefix(base, "."):
		return false
	case strings.HasSuffix(base, ".tmp"), strings.Contains(base, ".backup."):
		return false
	case strings.HasSuffix(base, "-wal"):
		return true
	}
	ext := filepath.Ext(base)
	return ext == ".json" || ext == ".db"
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !relevant(event.Name) {
				continue
			}
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watcher_error", "err", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changesMu.Lock()
	defer d.changesMu.Unlock()
	d.changes[path] = time.Now()
}

func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.takeSettledChanges() > 0 {
				d.Reload(d.ctx)
			}
		}
	}
}

// takeSettledChanges removes and counts the changes that have been quiet
// for a full debounce interval.
func (d *Daemon) takeSettledChanges() int {
	d.changesMu.Lock()
	defer d.changesMu.Unlock()

	now := time.Now()
	n := 0
	for path, at := range d.changes {
		if now.Sub(at) < d.config.DebounceInterval {
			continue
		}
		delete(d.changes, path)
		n++
	}
	return n
}

// Reload re-reads the queue and the journal from disk and flushes when
// online.
func (d *Daemon) Reload(ctx context.Context) {
	if err := d.queue.Reload(ctx); err != nil {
		d.logger.Warn("queue_reload_failed", "err", err)
	}
	info := d.store.Reload(ctx)
	if info.Corrupt {
		d.logger.Warn("journal_reload_corrupt")
	}
	d.logger.Debug("state_reloaded", "pending", d.queue.Len(), "logs", len(d.store.Logs()))

	if d.engine.Online() && d.queue.Len() > 0 {
		if _, err := d.engine.Flush(ctx); err != nil {
			d.logger.Warn("flush_after_reload_failed", "err", err)
		}
	}
}
