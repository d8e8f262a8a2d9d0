package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// UpsertResult describes the effect of ApplyLogUpsert.
type UpsertResult struct {
	Log          schema.TrainingLog
	Inserted     bool
	ExpGained    int
	LevelsGained int
	Profile      schema.Profile
}

// ApplyLogUpsert records a log with its stat deltas.
//
// A new id is prepended, its deltas are added to the profile stats and its
// duration grants experience. An existing id is replaced in place: its old
// deltas are reversed before the new ones are applied, and no experience is
// granted. Logs without an id get a fresh one.
func (s *Store) ApplyLogUpsert(ctx context.Context, l schema.TrainingLog, gained schema.Stats) (UpsertResult, error) {
	l = l.Clone()
	if l.ID == "" {
		l.ID = schema.NewLogID()
	}
	l.GainedStats = gained
	if err := l.Validate(); err != nil {
		return UpsertResult{}, err
	}

	var res UpsertResult
	err := s.mutate(ctx, func(doc *schema.Document) error {
		res = applyUpsert(doc, l)
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if res.LevelsGained > 0 {
		s.logger.Info("level_up", "level", res.Profile.Level, "levels", res.LevelsGained)
	}
	return res, nil
}

func applyUpsert(doc *schema.Document, l schema.TrainingLog) UpsertResult {
	res := UpsertResult{Log: l}

	if i := doc.FindLog(l.ID); i >= 0 {
		doc.Stats = doc.Stats.SubFloor(doc.Logs[i].GainedStats, schema.MinStat).Add(l.GainedStats)
		doc.Logs[i] = l
		res.Profile = doc.Profile
		return res
	}

	doc.Logs = append([]schema.TrainingLog{l}, doc.Logs...)
	doc.Stats = doc.Stats.Add(l.GainedStats)

	res.Inserted = true
	res.ExpGained = gamify.ExpGainForDuration(l.Duration)
	before := doc.Level
	doc.Level, doc.Exp = gamify.AdvanceLevel(doc.Level, doc.Exp, res.ExpGained, schema.MaxExp)
	res.LevelsGained = doc.Level - before
	res.Profile = doc.Profile
	return res
}

// ApplyLogDelete removes a log and reverses its stat deltas, flooring each
// stat at schema.MinStat. Experience is kept. Unknown ids return
// ErrLogNotFound and change nothing.
func (s *Store) ApplyLogDelete(ctx context.Context, id string) (schema.TrainingLog, error) {
	var removed schema.TrainingLog
	err := s.mutate(ctx, func(doc *schema.Document) error {
		i := doc.FindLog(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrLogNotFound, id)
		}
		removed = doc.Logs[i]
		doc.Stats = doc.Stats.SubFloor(removed.GainedStats, schema.MinStat)
		doc.Logs = append(doc.Logs[:i], doc.Logs[i+1:]...)
		return nil
	})
	return removed, err
}

// ProfileUpdate is a partial profile change. Nil fields are kept.
type ProfileUpdate struct {
	ProfileName        *string
	GearColor          *string
	OnboardingComplete *bool
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.ProfileName == nil && u.GearColor == nil && u.OnboardingComplete == nil
}

// ApplyProfileUpdate merges u into the profile and returns the result.
func (s *Store) ApplyProfileUpdate(ctx context.Context, u ProfileUpdate) (schema.Profile, error) {
	if u.GearColor != nil {
		if err := schema.ValidateGearColor(*u.GearColor); err != nil {
			return schema.Profile{}, fmt.Errorf("%w: %v", schema.ErrInvalidProfile, err)
		}
	}

	var out schema.Profile
	err := s.mutate(ctx, func(doc *schema.Document) error {
		if u.ProfileName != nil {
			doc.ProfileName = *u.ProfileName
		}
		if u.GearColor != nil {
			doc.GearColor = *u.GearColor
		}
		if u.OnboardingComplete != nil {
			doc.OnboardingComplete = *u.OnboardingComplete
		}
		out = doc.Profile
		return nil
	})
	return out, err
}

// MergeResult counts the outcome of MergeRemoteLogs.
type MergeResult struct {
	Added     int
	Replaced  int
	LocalOnly int
}

// MergeRemoteLogs merges logs fetched from the remote into the journal by
// id. Remote copies replace local ones sharing an id, local-only logs are
// kept, and the result is sorted newest first. Profile stats move by the
// difference in gained stats, the same way an edit does, so stats that did
// not come from log deltas (imports, legacy journals) are kept.
func (s *Store) MergeRemoteLogs(ctx context.Context, remote []schema.TrainingLog) (MergeResult, error) {
	var res MergeResult
	err := s.mutate(ctx, func(doc *schema.Document) error {
		byID := make(map[string]int, len(remote))
		merged := make([]schema.TrainingLog, 0, len(doc.Logs)+len(remote))
		for _, l := range remote {
			if l.ID == "" {
				return errors.New("remote log without id")
			}
			if i, dup := byID[l.ID]; dup {
				merged[i] = l.Clone()
				continue
			}
			byID[l.ID] = len(merged)
			merged = append(merged, l.Clone())
		}

		stats := doc.Stats
		replaced := make(map[string]bool)
		for _, l := range doc.Logs {
			if i, ok := byID[l.ID]; ok {
				res.Replaced++
				replaced[l.ID] = true
				stats = stats.SubFloor(l.GainedStats, schema.MinStat).Add(merged[i].GainedStats)
				continue
			}
			res.LocalOnly++
			merged = append(merged, l)
		}
		res.Added = len(byID) - res.Replaced
		for _, l := range merged[:len(byID)] {
			if !replaced[l.ID] {
				stats = stats.Add(l.GainedStats)
			}
		}

		schema.SortLogs(merged)
		doc.Logs = merged
		doc.Stats = stats
		return nil
	})
	return res, err
}

// ApplyRemoteProfile adopts the remote profile name and gear color when
// they are set. It reports whether anything changed.
func (s *Store) ApplyRemoteProfile(ctx context.Context, profileName, gearColor string) (bool, error) {
	changed := false
	err := s.mutate(ctx, func(doc *schema.Document) error {
		if profileName != "" && profileName != doc.ProfileName {
			doc.ProfileName = profileName
			changed = true
		}
		if gearColor != "" && gearColor != doc.GearColor && schema.ValidateGearColor(gearColor) == nil {
			doc.GearColor = gearColor
			changed = true
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	return changed, err
}

var errUnchanged = errors.New("unchanged")
