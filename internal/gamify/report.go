package gamify

import (
	"fmt"
	"time"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// DefaultReportMonths is the window AggregateByMonth uses for monthsBack <= 0.
const DefaultReportMonths = 6

// MonthTotal is one month of training volume.
type MonthTotal struct {
	Month        string `json:"month"`
	YearMonth    string `json:"yearMonth"`
	TotalMinutes int    `json:"totalMinutes"`
	Count        int    `json:"count"`
}

// AggregateByDate sums minutes per log date. Logs with missing or
// malformed dates are skipped.
func AggregateByDate(logs []schema.TrainingLog) map[string]int {
	out := make(map[string]int)
	for _, l := range logs {
		if _, ok := schema.ParseDate(l.Date); !ok {
			continue
		}
		out[l.Date] += max(l.Duration, 0)
	}
	return out
}

// AggregateByMonth returns the last monthsBack calendar months up to and
// including now's month, oldest first.
func AggregateByMonth(logs []schema.TrainingLog, monthsBack int, now time.Time) []MonthTotal {
	if monthsBack <= 0 {
		monthsBack = DefaultReportMonths
	}

	index := make(map[string]int, monthsBack)
	out := make([]MonthTotal, 0, monthsBack)
	for i := monthsBack - 1; i >= 0; i-- {
		first := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		ym := first.Format("2006-01")
		index[ym] = len(out)
		out = append(out, MonthTotal{
			Month:     fmt.Sprintf("%d월", int(first.Month())),
			YearMonth: ym,
		})
	}

	for _, l := range logs {
		d, ok := schema.ParseDate(l.Date)
		if !ok {
			continue
		}
		i, ok := index[d.Format("2006-01")]
		if !ok {
			continue
		}
		out[i].TotalMinutes += max(l.Duration, 0)
		out[i].Count++
	}
	return out
}
