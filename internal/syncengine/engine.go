// Package syncengine reconciles the local journal with the remote store.
//
// Local mutations always complete against the store first. The engine then
// forwards them: directly to the remote when online and nothing older is
// queued, otherwise through the persisted sync queue, which Flush drains in
// order. Pull-and-merge brings remote logs into the journal at session
// start, remote copies winning on conflict.
//
// Forwarded operations pass through one worker in submission order; it
// sends or enqueues each one, and an operation is only enqueued directly
// when that worker is idle. Remote writes go through one lock, so direct
// sends and flushes never interleave and the remote sees operations in the
// order they were made.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/store"
)

// DefaultRequestTimeout bounds every remote call.
const DefaultRequestTimeout = 10 * time.Second

// Config configures an Engine.
type Config struct {
	// UserID is the signed-in user. Empty means signed out: mutations stay
	// local and nothing is queued.
	UserID string

	RequestTimeout time.Duration
	Logger         *slog.Logger
	Now            func() time.Time

	// Online is the initial connectivity state. It is ignored without a
	// remote store.
	Online bool
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: DefaultRequestTimeout,
		Now:            time.Now,
	}
}

// Engine drives synchronization for one journal.
type Engine struct {
	cfg    Config
	store  *store.Store
	queue  *queue.Queue
	remote remote.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	flights  singleflight.Group
	remoteMu sync.Mutex

	mu         sync.Mutex
	online     bool
	syncing    bool
	closed     bool
	lastFlush  time.Time
	lastResult *FlushResult

	// pending holds forwarded operations the worker has not taken yet;
	// delivering is set while it works through a batch. Both under mu.
	pending    []queue.Op
	delivering bool
	wake       chan struct{}
	workerWG   sync.WaitGroup
	bgWG     sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates an engine. rs may be nil when no remote is configured; the
// engine then only queues.
func New(st *store.Store, q *queue.Queue, rs remote.Store, cfg Config) (*Engine, error) {
	if st == nil || q == nil {
		return nil, fmt.Errorf("store and queue are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "sync")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		store:  st,
		queue:  q,
		remote: rs,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		online: cfg.Online && rs != nil,
		wake:   make(chan struct{}, 1),
	}

	e.workerWG.Add(1)
	go e.runDirect()
	return e, nil
}

// Close stops accepting direct sends, delivers the ones already accepted
// (queueing those that fail), waits for background flushes and closes
// subscriber channels.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.signal()

	e.workerWG.Wait()
	e.bgWG.Wait()
	e.cancel()
	e.closeSubscribers()
	return nil
}

// UserID returns the signed-in user, or "".
func (e *Engine) UserID() string {
	return e.cfg.UserID
}

// Online reports the current connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetOnline records a connectivity change. Going online starts a
// background flush.
func (e *Engine) SetOnline(online bool) {
	if e.remote == nil {
		online = false
	}

	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if was == online {
		return
	}
	e.logger.Info("connectivity_changed", "online", online)
	e.publishStatus()
	if online {
		e.goFlush()
	}
}

// Status returns the current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Online:    e.online,
		SignedIn:  e.cfg.UserID != "",
		Syncing:   e.syncing,
		LastFlush: e.lastFlush,
	}
	if e.lastResult != nil {
		r := *e.lastResult
		st.LastResult = &r
	}
	e.mu.Unlock()

	st.Pending = e.queue.Len()
	if w, ok := e.store.Warning(); ok {
		st.StorageWarning = w.String()
	}
	st.Indicator = indicatorFor(st)
	return st
}

func (e *Engine) canSync() bool {
	return e.cfg.UserID != "" && e.remote != nil
}

func (e *Engine) goFlush() {
	e.mu.Lock()
	if e.closed || !e.canSync() {
		e.mu.Unlock()
		return
	}
	e.bgWG.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bgWG.Done()
		if _, err := e.Flush(e.ctx); err != nil {
			e.logger.Warn("background_flush_failed", "err", err)
		}
	}()
}

// Flush sends every queued operation to the remote, in order, and keeps
// only the failures queued. One failure does not stop the others.
// Concurrent calls share the flush already in flight.
func (e *Engine) Flush(ctx context.Context) (FlushResult, error) {
	if !e.canSync() {
		return FlushResult{Skipped: true, Remaining: e.queue.Len()}, nil
	}
	v, err, _ := e.flights.Do("flush", func() (any, error) {
		return e.flush(ctx)
	})
	if v == nil {
		return FlushResult{}, err
	}
	return v.(FlushResult), err
}

func (e *Engine) flush(ctx context.Context) (FlushResult, error) {
	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()

	ops := e.queue.Snapshot()
	if len(ops) == 0 {
		return e.finishFlush(FlushResult{}), nil
	}

	e.setSyncing(true)
	defer e.setSyncing(false)

	res := FlushResult{Attempted: len(ops)}
	results := make([]error, len(ops))
	for i, op := range ops {
		results[i] = e.apply(ctx, op)
		if results[i] != nil {
			res.Failed++
			e.logger.Warn("flush_op_failed", "type", op.Type, "key", op.Key(), "err", results[i])
		} else {
			res.Succeeded++
		}
	}

	remaining, err := e.queue.DrainSucceeded(ctx, results)
	res.Remaining = remaining
	if err != nil {
		return res, fmt.Errorf("failed to update sync queue: %w", err)
	}

	e.logger.Info("flush_complete", "attempted", res.Attempted, "failed", res.Failed, "remaining", res.Remaining)
	return e.finishFlush(res), nil
}

func (e *Engine) finishFlush(res FlushResult) FlushResult {
	e.mu.Lock()
	e.lastFlush = e.cfg.Now()
	r := res
	e.lastResult = &r
	e.mu.Unlock()

	e.publish(Event{Type: EventFlushComplete, Flush: &r})
	return res
}

func (e *Engine) setSyncing(v bool) {
	e.mu.Lock()
	e.syncing = v
	e.mu.Unlock()
	e.publishStatus()
}

// apply performs the remote call for one operation.
func (e *Engine) apply(ctx context.Context, op queue.Op) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	userID := e.cfg.UserID
	switch op.Type {
	case queue.InsertLog, queue.UpdateLog:
		l, err := op.Log()
		if err != nil {
			return err
		}
		row, err := remote.FromLog(userID, l, e.cfg.Now().UTC())
		if err != nil {
			return err
		}
		return e.remote.UpsertLog(ctx, userID, row)
	case queue.DeleteLog:
		id, err := op.DeleteID()
		if err != nil {
			return err
		}
		return e.remote.DeleteLog(ctx, userID, id)
	case queue.UpdateProfile:
		patch, err := op.ProfilePatch()
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return nil
		}
		return e.remote.UpdateProfile(ctx, userID, patch)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

// submit forwards a mutation that already happened locally. Offline, with
// the worker idle, the operation is queued before submit returns; otherwise
// the worker takes it after every operation submitted before it.
func (e *Engine) submit(op queue.Op) {
	if e.cfg.UserID == "" {
		return
	}

	e.mu.Lock()
	if e.closed || (!e.online && !e.delivering && len(e.pending) == 0) {
		e.mu.Unlock()
		e.enqueue(op)
		return
	}
	e.pending = append(e.pending, op)
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) enqueue(op queue.Op) {
	if err := e.queue.Enqueue(e.ctx, op); err != nil {
		e.logger.Error("enqueue_failed", "type", op.Type, "key", op.Key(), "err", err)
	}
	e.publishStatus()
}

// runDirect delivers pending operations until Close, then drains what is
// left.
func (e *Engine) runDirect() {
	defer e.workerWG.Done()
	for {
		e.mu.Lock()
		ops := e.pending
		e.pending = nil
		e.delivering = len(ops) > 0
		closed := e.closed
		e.mu.Unlock()

		for _, op := range ops {
			e.deliver(op)
		}
		if len(ops) > 0 {
			e.mu.Lock()
			e.delivering = false
			e.mu.Unlock()
			continue
		}
		if closed {
			return
		}
		<-e.wake
	}
}

// deliver sends op directly unless the engine is offline or older
// operations are still queued, in which case it joins the queue behind
// them.
func (e *Engine) deliver(op queue.Op) {
	e.remoteMu.Lock()
	online := e.Online()
	if !online || e.queue.Len() > 0 {
		e.remoteMu.Unlock()
		e.enqueue(op)
		if online {
			e.goFlush()
		}
		return
	}

	err := e.apply(e.ctx, op)
	e.remoteMu.Unlock()

	if err != nil {
		e.logger.Warn("direct_sync_failed", "type", op.Type, "key", op.Key(), "err", err)
		e.enqueue(op)
		return
	}
	e.logger.Debug("direct_sync_ok", "type", op.Type, "key", op.Key())
}

// PullResult describes a pull-and-merge.
type PullResult struct {
	Fetched        int
	Merge          store.MergeResult
	ProfileUpdated bool
}

// PullAndMerge fetches the user's remote logs and merges them into the
// journal, remote copies replacing local ones with the same id. The remote
// profile's name and gear color replace the local ones when set.
func (e *Engine) PullAndMerge(ctx context.Context) (PullResult, error) {
	var res PullResult
	if !e.canSync() {
		return res, errors.New("pull requires a signed-in user and a remote store")
	}
	userID := e.cfg.UserID

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	rows, err := e.remote.FetchLogs(fetchCtx, userID)
	cancel()
	if err != nil {
		return res, fmt.Errorf("failed to fetch remote logs: %w", err)
	}
	res.Fetched = len(rows)

	logs := make([]schema.TrainingLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.ToLog())
	}
	res.Merge, err = e.store.MergeRemoteLogs(ctx, logs)
	if err != nil {
		return res, fmt.Errorf("failed to merge remote logs: %w", err)
	}

	fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
	profile, err := e.remote.FetchProfile(fetchCtx, userID)
	cancel()
	switch {
	case errors.Is(err, remote.ErrNotFound):
	case err != nil:
		e.logger.Warn("fetch_profile_failed", "err", err)
	default:
		res.ProfileUpdated, err = e.store.ApplyRemoteProfile(ctx, profile.ProfileName, profile.GearColor)
		if err != nil {
			return res, err
		}
	}

	e.logger.Info("pull_complete", "fetched", res.Fetched, "added", res.Merge.Added, "replaced", res.Merge.Replaced, "local_only", res.Merge.LocalOnly)
	e.checkStorage()
	e.publishStatus()
	return res, nil
}

func (e *Engine) checkStorage() {
	if w, ok := e.store.Warning(); ok {
		e.publish(Event{Type: EventStorageWarning, Warning: &w})
	}
}
