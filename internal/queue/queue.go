// Package queue is the durable, ordered buffer of mutations that have not
// reached the remote store yet.
//
// The queue is one JSON array stored under QueueKey. Every change is a
// read-modify-write of the whole array under the backend's write lock
// (kv.Backend.Update), so a CLI process enqueueing next to a running daemon
// does not lose operations: Enqueue appends to the persisted list, and
// DrainSucceeded keeps anything persisted after the prefix it attempted.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/kv"
)

// QueueKey is the kv key of the queue document.
const QueueKey = "pixel-tennis-sync-queue"

// ErrResultMismatch is returned when DrainSucceeded gets more results than
// there are queued operations.
var ErrResultMismatch = errors.New("more results than queued operations")

// Config configures a Queue.
type Config struct {
	Backend kv.Backend
	Logger  *slog.Logger
	Now     func() time.Time
}

// Queue is the persisted sync queue.
type Queue struct {
	mu      sync.Mutex
	backend kv.Backend
	logger  *slog.Logger
	now     func() time.Time
	ops     []Op
}

// Open loads the queue from cfg.Backend. A corrupt queue document is
// logged and starts empty.
func Open(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("queue backend cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "queue")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	q := &Queue{backend: cfg.Backend, logger: cfg.Logger, now: cfg.Now}
	if err := q.Reload(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// Reload re-reads the persisted queue.
func (q *Queue) Reload(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.readLocked(ctx)
	if err != nil {
		return err
	}
	q.ops = ops
	return nil
}

func (q *Queue) readLocked(ctx context.Context) ([]Op, error) {
	data, err := q.backend.Get(ctx, QueueKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}

	return q.decode(data), nil
}

// decode parses a persisted queue. Corrupt documents decode as empty and
// unknown operation types are dropped.
func (q *Queue) decode(data []byte) []Op {
	if len(data) == 0 {
		return nil
	}
	var ops []Op
	if err := json.Unmarshal(data, &ops); err != nil {
		q.logger.Warn("sync_queue_corrupt", "err", err, "bytes", len(data))
		return nil
	}
	valid := ops[:0]
	for _, op := range ops {
		if !op.Type.Valid() {
			q.logger.Warn("sync_queue_unknown_op", "type", op.Type)
			continue
		}
		valid = append(valid, op)
	}
	return valid
}

func encode(ops []Op) ([]byte, error) {
	if ops == nil {
		ops = []Op{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync queue: %w", err)
	}
	return data, nil
}

func (q *Queue) writeLocked(ctx context.Context, ops []Op) error {
	data, err := encode(ops)
	if err != nil {
		return err
	}
	if err := q.backend.Put(ctx, QueueKey, data); err != nil {
		return fmt.Errorf("failed to write sync queue: %w", err)
	}
	return nil
}

// updateLocked rewrites the persisted queue with fn's result under the
// backend lock and mirrors it in memory.
func (q *Queue) updateLocked(ctx context.Context, fn func(persisted []Op) ([]Op, error)) error {
	var next []Op
	err := q.backend.Update(ctx, QueueKey, func(old []byte) ([]byte, error) {
		var err error
		next, err = fn(q.decode(old))
		if err != nil {
			return nil, err
		}
		return encode(next)
	})
	if err != nil {
		return err
	}
	q.ops = next
	return nil
}

// Enqueue appends op, stamping its timestamp when unset, and persists the
// queue. If persisting fails the operation is still held in memory and the
// error is returned.
func (q *Queue) Enqueue(ctx context.Context, op Op) error {
	if !op.Type.Valid() {
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	if op.Timestamp == 0 {
		op.Timestamp = q.now().UnixMilli()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.updateLocked(ctx, func(persisted []Op) ([]Op, error) {
		return append(persisted, op), nil
	})
	if err != nil {
		q.ops = append(q.ops, op)
		return fmt.Errorf("failed to persist sync queue: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the queued operations in order.
func (q *Queue) Snapshot() []Op {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Op(nil), q.ops...)
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// DrainSucceeded removes the operations that reached the remote store.
// results[i] is the outcome of the i-th queued operation (nil on success);
// results cover a prefix of the queue. Failed operations stay in order,
// followed by everything queued after the prefix. It returns the new
// length.
func (q *Queue) DrainSucceeded(ctx context.Context, results []error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(results)
	if n > len(q.ops) {
		return len(q.ops), fmt.Errorf("%w: %d results for %d operations", ErrResultMismatch, n, len(q.ops))
	}
	attempted := slices.Clone(q.ops[:n])
	memTail := slices.Clone(q.ops[n:])

	keep := func(tail []Op) []Op {
		kept := make([]Op, 0, len(tail)+n)
		for i, err := range results {
			if err != nil {
				kept = append(kept, attempted[i])
			}
		}
		return append(kept, tail...)
	}

	err := q.updateLocked(ctx, func(persisted []Op) ([]Op, error) {
		if hasPrefix(persisted, attempted) {
			return keep(persisted[n:]), nil
		}
		return keep(memTail), nil
	})
	if err != nil {
		q.ops = keep(memTail)
		return len(q.ops), fmt.Errorf("failed to persist sync queue: %w", err)
	}
	return len(q.ops), nil
}

// Clear drops every queued operation.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
	return q.writeLocked(ctx, nil)
}

func hasPrefix(ops, prefix []Op) bool {
	if len(ops) < len(prefix) {
		return false
	}
	for i := range prefix {
		if !ops[i].same(prefix[i]) {
			return false
		}
	}
	return true
}
