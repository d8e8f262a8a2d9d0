// Package store owns the on-device journal: the profile and every training
// log, persisted as one versioned JSON document in a kv.Backend.
//
// All reads and writes go through a *Store. Mutations apply the gamification
// rules (stat deltas, experience and levels) and persist before returning.
// Persistence failures never fail a mutation: the in-memory document stays
// authoritative and the failure is raised as a StorageWarning.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/migrate"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

const (
	// DocumentKey is the kv key of the journal document.
	DocumentKey = "pixel-tennis-data-v1"

	// DefaultPressureThreshold is the serialized size above which a
	// StorageWarning is raised.
	DefaultPressureThreshold = 4 << 20
)

// ErrLogNotFound is returned when a log id is not in the journal.
var ErrLogNotFound = errors.New("log not found")

// StorageWarning is the advisory storage-pressure signal.
type StorageWarning struct {
	Size      int `json:"size"`
	Threshold int `json:"threshold"`
	// Err is set when the document could not be written at all.
	Err error `json:"-"`
}

func (w StorageWarning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("journal not saved: %v", w.Err)
	}
	return fmt.Sprintf("journal uses %d bytes (threshold %d)", w.Size, w.Threshold)
}

// Config configures a Store.
type Config struct {
	Backend kv.Backend
	Logger  *slog.Logger

	// PressureThreshold defaults to DefaultPressureThreshold.
	PressureThreshold int

	// OnStorageWarning is called after a save that crossed the threshold
	// or failed. It runs outside the store lock.
	OnStorageWarning func(StorageWarning)
}

// LoadInfo describes where the current document came from.
type LoadInfo struct {
	Found     bool
	Corrupt   bool
	Migration migrate.Result
}

// Store is the local journal.
type Store struct {
	mu        sync.Mutex
	backend   kv.Backend
	logger    *slog.Logger
	threshold int
	onWarning func(StorageWarning)

	doc      *schema.Document
	lastSize int
	warning  *StorageWarning
}

// Open creates a Store and loads the persisted journal.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("store backend cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "store")
	}
	if cfg.PressureThreshold <= 0 {
		cfg.PressureThreshold = DefaultPressureThreshold
	}

	s := &Store{
		backend:   cfg.Backend,
		logger:    cfg.Logger,
		threshold: cfg.PressureThreshold,
		onWarning: cfg.OnStorageWarning,
	}
	s.Load(ctx)
	return s, nil
}

// Load replaces the in-memory journal with the persisted one. Missing,
// unreadable or corrupt documents load as the default journal; Load never
// fails.
func (s *Store) Load(ctx context.Context) LoadInfo {
	doc, info := s.read(ctx)

	s.mu.Lock()
	s.doc = doc
	var warn *StorageWarning
	if info.Migration.Changed() {
		warn = s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify(warn)
	return info
}

// Reload re-reads the persisted journal, picking up writes made by other
// processes.
func (s *Store) Reload(ctx context.Context) LoadInfo {
	return s.Load(ctx)
}

func (s *Store) read(ctx context.Context) (*schema.Document, LoadInfo) {
	var info LoadInfo

	data, err := s.backend.Get(ctx, DocumentKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("journal_read_failed", "err", err)
		}
		return schema.DefaultDocument(migrate.CurrentVersion), info
	}
	info.Found = true

	doc, res, err := decodeDocument(data)
	if err != nil {
		s.logger.Warn("journal_corrupt", "err", err, "bytes", len(data))
		info.Corrupt = true
		return schema.DefaultDocument(migrate.CurrentVersion), info
	}
	info.Migration = res
	if res.Newer {
		s.logger.Warn("journal_from_newer_version", "version", doc.SchemaVersion, "current", migrate.CurrentVersion)
	} else if res.Changed() {
		s.logger.Info("journal_migrated", "from", res.From, "to", res.To, "assigned_ids", res.AssignedIDs)
	}
	return doc, info
}

func decodeDocument(data []byte) (*schema.Document, migrate.Result, error) {
	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, migrate.Result{}, fmt.Errorf("failed to decode journal: %w", err)
	}
	res, err := migrate.Document(&doc, migrate.Options{})
	if err != nil {
		return nil, migrate.Result{}, err
	}
	if !res.Newer {
		normalizeProgress(&doc)
	}
	return &doc, res, nil
}

// normalizeProgress folds out-of-range experience into levels.
func normalizeProgress(doc *schema.Document) {
	doc.Level, doc.Exp = gamify.AdvanceLevel(doc.Level, doc.Exp, 0, schema.MaxExp)
}

// Save persists the current journal. The returned error is also raised as
// a StorageWarning.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	warn := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(warn)
	if warn != nil && warn.Err != nil {
		return warn.Err
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) *StorageWarning {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return s.setWarningLocked(StorageWarning{Threshold: s.threshold, Err: fmt.Errorf("failed to encode journal: %w", err)})
	}
	s.lastSize = len(data)

	if err := s.backend.Put(ctx, DocumentKey, data); err != nil {
		return s.setWarningLocked(StorageWarning{Size: len(data), Threshold: s.threshold, Err: fmt.Errorf("failed to write journal: %w", err)})
	}
	if len(data) > s.threshold {
		return s.setWarningLocked(StorageWarning{Size: len(data), Threshold: s.threshold})
	}
	s.warning = nil
	return nil
}

func (s *Store) setWarningLocked(w StorageWarning) *StorageWarning {
	s.warning = &w
	if w.Err != nil {
		s.logger.Error("journal_save_failed", "err", w.Err)
	} else {
		s.logger.Warn("storage_pressure", "bytes", w.Size, "threshold", w.Threshold)
	}
	return &w
}

func (s *Store) notify(w *StorageWarning) {
	if w != nil && s.onWarning != nil {
		s.onWarning(*w)
	}
}

// Warning returns the warning raised by the last save, if any.
func (s *Store) Warning() (StorageWarning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warning == nil {
		return StorageWarning{}, false
	}
	return *s.warning, true
}

// Size returns the serialized size of the journal at the last save.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSize
}

// mutate applies fn to a copy of the journal and, if fn succeeds, swaps the
// copy in and persists it.
func (s *Store) mutate(ctx context.Context, fn func(doc *schema.Document) error) error {
	s.mu.Lock()
	next := s.doc.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = next
	warn := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(warn)
	return nil
}

// Snapshot returns a deep copy of the journal.
func (s *Store) Snapshot() *schema.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Profile returns the current profile.
func (s *Store) Profile() schema.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Profile
}

// Logs returns a copy of the logs, newest first.
func (s *Store) Logs() []schema.TrainingLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SortedLogs()
}

// Log returns the log with id.
func (s *Store) Log(id string) (schema.TrainingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.doc.FindLog(id)
	if i < 0 {
		return schema.TrainingLog{}, fmt.Errorf("%w: %s", ErrLogNotFound, id)
	}
	return s.doc.Logs[i].Clone(), nil
}

// Reset restores the default journal.
func (s *Store) Reset(ctx context.Context) error {
	err := s.mutate(ctx, func(doc *schema.Document) error {
		*doc = *schema.DefaultDocument(migrate.CurrentVersion)
		return nil
	})
	if err == nil {
		s.logger.Info("journal_reset")
	}
	return err
}
