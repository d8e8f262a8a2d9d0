package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// Remote migration constants.
const (
	// MigratedKey marks a journal whose local data has been uploaded.
	MigratedKey = "pixel-tennis-migrated"

	DefaultBatchSize = 50
)

// RemoteOptions control ToRemote.
type RemoteOptions struct {
	BatchSize  int
	OnProgress func(done, total int)
	Logger     *slog.Logger
	Now        func() time.Time
}

// RemoteResult contains statistics about an upload.
type RemoteResult struct {
	Success    bool
	Migrated   int
	Errors     int
	ProfileErr error
	MarkedAt   time.Time
	// BatchErrors has one message per failed batch.
	BatchErrors []string
}

// HasLocalDataToMigrate reports whether doc has logs that were never
// uploaded.
func HasLocalDataToMigrate(ctx context.Context, backend kv.Backend, doc *schema.Document) (bool, error) {
	_, err := backend.Get(ctx, MigratedKey)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, kv.ErrNotFound):
		return false, fmt.Errorf("failed to read migration marker: %w", err)
	}
	return doc != nil && len(doc.Logs) > 0, nil
}

// ToRemote uploads a local journal for userID: the profile first, then the
// logs in batches. A failed batch is counted and skipped; earlier batches
// are not rolled back. The migrated marker is written only when everything
// succeeded, so a partial upload is retried in full next time (upserts make
// that safe).
func ToRemote(ctx context.Context, rs remote.Store, backend kv.Backend, userID string, doc *schema.Document, opts RemoteOptions) (*RemoteResult, error) {
	if rs == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "migrate")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	result := &RemoteResult{}

	if err := rs.UpdateProfile(ctx, userID, remote.ProfilePatchFromDocument(doc)); err != nil {
		opts.Logger.Error("profile_migration_failed", "user_id", userID, "err", err)
		result.ProfileErr = err
	}

	total := len(doc.Logs)
	for start := 0; start < total; start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+opts.BatchSize, total)
		batch := doc.Logs[start:end]
		now := opts.Now()

		rows := make([]remote.LogRow, 0, len(batch))
		var mapErr error
		for _, l := range batch {
			if l.ID == "" {
				l.ID = schema.NewLogID()
			}
			l.Photo = ""
			row, err := remote.FromLog(userID, l, now)
			if err != nil {
				mapErr = err
				break
			}
			rows = append(rows, row)
		}

		err := mapErr
		if err == nil {
			err = rs.UpsertLogs(ctx, userID, rows)
		}
		if err != nil {
			opts.Logger.Error("log_batch_migration_failed", "from", start, "to", end, "err", err)
			result.Errors += len(batch)
			result.BatchErrors = append(result.BatchErrors, fmt.Sprintf("logs %d-%d: %v", start, end-1, err))
		} else {
			result.Migrated += len(batch)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
	}

	result.Success = result.Errors == 0 && result.ProfileErr == nil
	if !result.Success {
		return result, nil
	}

	result.MarkedAt = opts.Now().UTC()
	if err := backend.Put(ctx, MigratedKey, []byte(result.MarkedAt.Format(time.RFC3339))); err != nil {
		return result, fmt.Errorf("failed to write migration marker: %w", err)
	}
	opts.Logger.Info("local_data_migrated", "user_id", userID, "logs", result.Migrated)
	return result, nil
}
