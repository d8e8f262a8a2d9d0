// Package gamify derives progress from training logs: point budgets,
// experience and levels, streaks, achievements and reporting rollups.
//
// Everything here is a pure function of its inputs. Callers own the state
// and decide when to persist it.
package gamify

import (
	"fmt"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// PointsForDuration returns the skill points a session of the given length
// earns. The points must all be allocated across skills before a new log is
// saved.
func PointsForDuration(minutes int) int {
	switch {
	case minutes < 20:
		return 0
	case minutes < 60:
		return 1
	case minutes < 90:
		return 2
	default:
		return 3
	}
}

// ExpGainForDuration returns the experience granted when a log is created.
func ExpGainForDuration(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	return minutes / 2
}

// AdvanceLevel adds gain to exp and converts every full maxExp into a
// level, so one update can cross several levels.
func AdvanceLevel(level, exp, gain, maxExp int) (int, int) {
	if maxExp <= 0 {
		return level, exp
	}
	total := exp + gain
	if total < 0 {
		return level, 0
	}
	return level + total/maxExp, total % maxExp
}

// CheckAllocation verifies that a new log spends exactly its point budget.
func CheckAllocation(minutes int, gained schema.Stats) error {
	if err := gained.ValidateDelta(); err != nil {
		return err
	}
	budget := PointsForDuration(minutes)
	spent := gained.Total()
	switch {
	case spent > budget:
		return fmt.Errorf("allocated %d points but a %d minute session only earns %d", spent, minutes, budget)
	case spent < budget:
		return fmt.Errorf("%d of %d points left to allocate", budget-spent, budget)
	}
	return nil
}

// ReconstructStats rebuilds profile stats from the logs' recorded deltas on
// top of the starting stats.
func ReconstructStats(logs []schema.TrainingLog) schema.Stats {
	stats := schema.DefaultStats()
	for _, l := range logs {
		stats = stats.Add(l.GainedStats)
	}
	for _, k := range schema.StatKeys {
		stats.Set(k, max(schema.MinStat, stats.Get(k)))
	}
	return stats
}
