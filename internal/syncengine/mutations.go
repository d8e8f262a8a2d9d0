package syncengine

import (
	"context"

	"github.com/pixeltennis/pixeltennis/internal/queue"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/store"
)

// SaveLog records a new or edited log locally and forwards it. It returns
// once the journal is persisted and never waits on the network.
func (e *Engine) SaveLog(ctx context.Context, l schema.TrainingLog, gained schema.Stats) (store.UpsertResult, error) {
	res, err := e.store.ApplyLogUpsert(ctx, l, gained)
	if err != nil {
		return res, err
	}

	opType := queue.UpdateLog
	if res.Inserted {
		opType = queue.InsertLog
	}
	e.forward(queue.NewLogOp(opType, res.Log))
	e.forwardProgress(res.Profile)

	if res.LevelsGained > 0 {
		e.publish(Event{Type: EventLevelUp, Level: res.Profile.Level})
	}
	e.checkStorage()
	return res, nil
}

// DeleteLog removes a log locally and forwards the delete.
func (e *Engine) DeleteLog(ctx context.Context, id string) (schema.TrainingLog, error) {
	removed, err := e.store.ApplyLogDelete(ctx, id)
	if err != nil {
		return removed, err
	}
	e.forward(queue.NewDeleteOp(id))
	e.forwardProgress(e.store.Profile())
	e.checkStorage()
	return removed, nil
}

// UpdateProfile applies a partial profile change locally and forwards it.
func (e *Engine) UpdateProfile(ctx context.Context, u store.ProfileUpdate) (schema.Profile, error) {
	p, err := e.store.ApplyProfileUpdate(ctx, u)
	if err != nil {
		return p, err
	}
	e.forward(queue.NewProfileOp(remote.ProfilePatch{
		ProfileName:        u.ProfileName,
		GearColor:          u.GearColor,
		OnboardingComplete: u.OnboardingComplete,
	}))
	e.checkStorage()
	return p, nil
}

// forwardProgress mirrors level, exp and stats after a log mutation.
func (e *Engine) forwardProgress(p schema.Profile) {
	level, exp, stats := p.Level, p.Exp, p.Stats
	e.forward(queue.NewProfileOp(remote.ProfilePatch{Level: &level, Exp: &exp, Stats: &stats}))
}

func (e *Engine) forward(op queue.Op, err error) {
	if err != nil {
		e.logger.Error("build_sync_op_failed", "err", err)
		return
	}
	e.submit(op)
}
