// Package gormstore implements remote.Store on a relational database
// through gorm. Postgres is the production backend; a sqlite:// DSN opens
// an embedded database for single-host servers and tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

const sqlitePrefix = "sqlite://"

// Options configure a Store.
type Options struct {
	Logger        *slog.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
	Now           func() time.Time
}

// DefaultOptions returns the options used by pt serve.
func DefaultOptions() Options {
	return Options{
		LogLevel:      gormlogger.Warn,
		SlowThreshold: 500 * time.Millisecond,
		Now:           time.Now,
	}
}

// Store is a gorm-backed remote.Store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ remote.Store = (*Store)(nil)

// Open connects to dsn and migrates the schema. DSNs starting with
// sqlite:// open an embedded database; anything else goes to Postgres.
func Open(dsn string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "gormstore")
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = gormlogger.Warn
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 500 * time.Millisecond
	}

	gormLogger := slogGorm.New(
		slogGorm.WithHandler(opts.Logger.Handler()),
		slogGorm.WithTraceAll(),
		slogGorm.WithSlowThreshold(opts.SlowThreshold),
	).LogMode(opts.LogLevel)

	var dialector gorm.Dialector
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if dialector.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := New(db, opts)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	opts.Logger.Info("remote_database_ready", "dialect", dialector.Name())
	return s, nil
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "gormstore")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := db.AutoMigrate(&profileModel{}, &logModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db, logger: opts.Logger, now: opts.Now}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &remote.Error{Op: op, Err: err}
}

// UpsertLog inserts or replaces one log.
func (s *Store) UpsertLog(ctx context.Context, userID string, row remote.LogRow) error {
	return s.UpsertLogs(ctx, userID, []remote.LogRow{row})
}

// UpsertLogs inserts or replaces logs by id. Rows owned by another user
// are left untouched.
func (s *Store) UpsertLogs(ctx context.Context, userID string, rows []remote.LogRow) error {
	if len(rows) == 0 {
		return nil
	}
	now := s.now().UTC()
	models := make([]logModel, 0, len(rows))
	for _, r := range rows {
		m := logModelFromRow(userID, r)
		m.UpdatedAt = now
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		models = append(models, m)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"date", "type", "duration", "satisfaction", "note", "photo_url",
			"gained_stats", "details", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "training_logs.user_id = excluded.user_id"},
		}},
	}).Create(&models).Error
	return wrap("upsert_logs", err)
}

// DeleteLog removes logID if userID owns it.
func (s *Store) DeleteLog(ctx context.Context, userID, logID string) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", logID, userID).
		Delete(&logModel{}).Error
	return wrap("delete_log", err)
}

// UpdateProfile applies patch to the profile of userID, creating the
// profile first when it does not exist.
func (s *Store) UpdateProfile(ctx context.Context, userID string, patch remote.ProfilePatch) error {
	now := s.now().UTC()
	cols := patch.Columns()
	if stats, ok := cols["stats"]; ok {
		data, err := json.Marshal(stats)
		if err != nil {
			return wrap("update_profile", err)
		}
		cols["stats"] = string(data)
	}
	cols["updated_at"] = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := profileModel{
			ID:         userID,
			GearColor:  schema.DefaultGearColor,
			Level:      1,
			Stats:      schema.DefaultStats(),
			InviteCode: newInviteCode(),
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return err
		}
		return tx.Table(profileModel{}.TableName()).Where("id = ?", userID).Updates(cols).Error
	})
	return wrap("update_profile", err)
}

// FetchLogs returns every log of userID, newest date first.
func (s *Store) FetchLogs(ctx context.Context, userID string) ([]remote.LogRow, error) {
	var models []logModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc").Order("id").
		Find(&models).Error
	if err != nil {
		return nil, wrap("fetch_logs", err)
	}
	rows := make([]remote.LogRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.row())
	}
	return rows, nil
}

// FetchProfile returns the profile of userID.
func (s *Store) FetchProfile(ctx context.Context, userID string) (remote.ProfileRow, error) {
	var m profileModel
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return remote.ProfileRow{}, remote.ErrNotFound
	}
	if err != nil {
		return remote.ProfileRow{}, wrap("fetch_profile", err)
	}
	return m.row(), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("ping", err)
	}
	return wrap("ping", sqlDB.PingContext(ctx))
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
