package ui

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

func plain() *Renderer {
	return NewPlain(io.Discard)
}

func TestProfileCard(t *testing.T) {
	p := schema.DefaultProfile()
	p.ProfileName = "jin"
	p.Level = 5
	p.Exp = 50
	p.Stats.Forehand = 8

	out := plain().Profile(p)
	assert.Contains(t, out, "jin")
	assert.Contains(t, out, "Lv.5 중급자")
	assert.Contains(t, out, "50/100 exp")
	assert.Contains(t, out, "forehand")
	assert.NotContains(t, out, "\x1b[")
}

func TestExpBar(t *testing.T) {
	r := plain()
	assert.Equal(t, strings.Repeat("░", barWidth), r.ExpBar(0))
	assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("░", 10), r.ExpBar(50))
	assert.Equal(t, strings.Repeat("█", barWidth), r.ExpBar(250))
}

func TestLogTable(t *testing.T) {
	r := plain()
	assert.Contains(t, r.LogTable(nil), "No training logs")

	out := r.LogTable([]schema.TrainingLog{{
		ID: "log-1", Date: "2026-10-01", Type: schema.LogLesson, Duration: 60, Satisfaction: 4,
		Note: "slice backhand", GainedStats: schema.Stats{Backhand: 2},
	}})
	assert.Contains(t, out, "2026-10-01")
	assert.Contains(t, out, "★★★★☆")
	assert.Contains(t, out, "backhand+2")
	assert.Contains(t, out, "slice backhand")
}

func TestAchievementsUnlockedFirst(t *testing.T) {
	out := plain().Achievements([]gamify.Achievement{
		{Title: "Locked", Progress: 1, Threshold: 3},
		{Title: "Open", Unlocked: true, Progress: 1, Threshold: 1},
	})
	assert.Contains(t, out, "1/2")
	assert.Less(t, strings.Index(out, "Open"), strings.Index(out, "Locked"))
}

func TestSyncStatus(t *testing.T) {
	r := plain()
	assert.Contains(t, r.SyncStatus(syncengine.Status{Indicator: syncengine.IndicatorOffline, Pending: 2}), "offline (2 pending)")
	assert.Contains(t, r.SyncStatus(syncengine.Status{Indicator: syncengine.IndicatorOffline}), "not signed in")

	out := r.SyncStatus(syncengine.Status{
		Indicator:  syncengine.IndicatorSynced,
		SignedIn:   true,
		LastFlush:  time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
		LastResult: &syncengine.FlushResult{Succeeded: 3, Failed: 1},
	})
	assert.Contains(t, out, "synced")
	assert.Contains(t, out, "3 sent, 1 failed")
}

func TestReport(t *testing.T) {
	out := plain().Report([]gamify.MonthTotal{
		{Month: "9월", YearMonth: "2026-09", TotalMinutes: 100, Count: 2},
		{Month: "10월", YearMonth: "2026-10", TotalMinutes: 200, Count: 3},
	})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], strings.Repeat("▇", barWidth))
}
