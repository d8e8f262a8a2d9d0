package gamify

import (
	"slices"
	"time"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// maxStreakWalk bounds the backward walk for the current streak.
const maxStreakWalk = 400

// Streak summarises training consistency. A single missed day does not
// break a streak; two missed days in a row do.
type Streak struct {
	Current  int `json:"current"`
	Longest  int `json:"longest"`
	ThisWeek int `json:"thisWeek"`
}

// ComputeStreak computes streaks from log dates relative to today. Dates
// are deduplicated; malformed ones are ignored.
func ComputeStreak(dates []string, today time.Time) Streak {
	days := make(map[int]struct{}, len(dates))
	for _, d := range dates {
		if n, ok := dayNumber(d); ok {
			days[n] = struct{}{}
		}
	}
	if len(days) == 0 {
		return Streak{}
	}

	y, m, d := today.Date()
	todayN := civilDay(y, m, d)

	var s Streak

	weekStart := todayN - int(today.Weekday())
	for n := range days {
		if n >= weekStart {
			s.ThisWeek++
		}
	}

	start, found := todayN, true
	if _, ok := days[todayN]; !ok {
		start = todayN - 1
		_, found = days[start]
	}
	if found {
		rest := 0
		for n := start; ; n-- {
			if _, ok := days[n]; ok {
				s.Current++
				rest = 0
			} else {
				rest++
				if rest > 1 {
					break
				}
			}
			if s.Current+rest > maxStreakWalk {
				break
			}
		}
	}

	sorted := make([]int, 0, len(days))
	for n := range days {
		sorted = append(sorted, n)
	}
	slices.Sort(sorted)

	streak, rest := 0, 0
	for n := sorted[0]; n <= sorted[len(sorted)-1]; n++ {
		if _, ok := days[n]; ok {
			streak++
			rest = 0
			continue
		}
		rest++
		if rest > 1 {
			s.Longest = max(s.Longest, streak)
			streak, rest = 0, 0
		}
	}
	s.Longest = max(s.Longest, streak)

	return s
}

// dayNumber converts a YYYY-MM-DD date into a day count that is free of
// time zone and DST effects.
func dayNumber(date string) (int, bool) {
	t, err := time.Parse(schema.DateLayout, date)
	if err != nil {
		return 0, false
	}
	return civilDay(t.Date()), true
}

func civilDay(y int, m time.Month, d int) int {
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
