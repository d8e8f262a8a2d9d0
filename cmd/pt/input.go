package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDate accepts YYYY-MM-DD or a natural phrase such as "yesterday" or
// "last friday", resolved against now. Empty means today.
func parseDate(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return schema.FormatDate(now), nil
	}
	if t, ok := schema.ParseDate(text); ok {
		return schema.FormatDate(t), nil
	}
	r, err := dateParser.Parse(text, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", text, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q (use YYYY-MM-DD or e.g. \"yesterday\")", text)
	}
	return schema.FormatDate(r.Time), nil
}

// parseStats turns key=n pairs into a stat delta.
func parseStats(pairs []string) (schema.Stats, error) {
	var out schema.Stats
	seen := make(map[schema.StatKey]bool, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return schema.Stats{}, fmt.Errorf("stat %q must look like key=n", p)
		}
		key, err := schema.ParseStatKey(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return schema.Stats{}, err
		}
		if seen[key] {
			return schema.Stats{}, fmt.Errorf("stat %s given twice", key)
		}
		seen[key] = true
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return schema.Stats{}, fmt.Errorf("stat %s: %q is not a number", key, value)
		}
		out.Set(key, n)
	}
	return out, nil
}

// parseMatch reads "type:mine-theirs", e.g. "singles:6-4". The result is
// derived from the score; a tie counts as a loss.
func parseMatch(s string) (schema.GameRecord, error) {
	kind, score, ok := strings.Cut(s, ":")
	if !ok {
		return schema.GameRecord{}, fmt.Errorf("match %q must look like singles:6-4", s)
	}
	mine, theirs, ok := strings.Cut(score, "-")
	if !ok {
		return schema.GameRecord{}, fmt.Errorf("match %q: score must look like 6-4", s)
	}
	my, err := strconv.Atoi(strings.TrimSpace(mine))
	if err != nil {
		return schema.GameRecord{}, fmt.Errorf("match %q: bad score", s)
	}
	opp, err := strconv.Atoi(strings.TrimSpace(theirs))
	if err != nil {
		return schema.GameRecord{}, fmt.Errorf("match %q: bad score", s)
	}

	rec := schema.GameRecord{
		Type:     schema.MatchType(strings.ToLower(strings.TrimSpace(kind))),
		MyScore:  my,
		OppScore: opp,
		Result:   schema.ResultLose,
	}
	if my > opp {
		rec.Result = schema.ResultWin
	}
	return rec, nil
}

// buildDetails assembles the type-specific payload from flag values. It
// returns nil when nothing was given.
func buildDetails(t schema.LogType, tags, matches []string, weather string) (schema.Details, error) {
	switch t {
	case schema.LogGame:
		if len(tags) > 0 {
			return nil, fmt.Errorf("tags apply to lessons and practice only")
		}
		if len(matches) == 0 && weather == "" {
			return nil, nil
		}
		d := &schema.GameDetails{MatchCount: max(len(matches), 1), Weather: schema.Weather(weather)}
		for _, m := range matches {
			rec, err := parseMatch(m)
			if err != nil {
				return nil, err
			}
			d.Games = append(d.Games, rec)
		}
		return d, nil
	default:
		if len(matches) > 0 || weather != "" {
			return nil, fmt.Errorf("matches and weather apply to games only")
		}
		if len(tags) == 0 {
			return nil, nil
		}
		return &schema.SessionDetails{Tags: tags}, nil
	}
}
