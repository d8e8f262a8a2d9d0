package gamify

import (
	_ "embed"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Metric is the quantity an achievement threshold is compared against.
type Metric string

const (
	MetricLevel         Metric = "level"
	MetricLongestStreak Metric = "longest_streak"
	MetricLogCount      Metric = "log_count"
	MetricTotalMinutes  Metric = "total_minutes"
	MetricLogTypes      Metric = "log_types"
	MetricStatTotal     Metric = "stat_total"
)

// Category groups achievements for display.
type Category string

const (
	CategoryLevel     Category = "level"
	CategoryStreak    Category = "streak"
	CategoryCount     Category = "count"
	CategoryDiversity Category = "diversity"
)

// Rule is one catalog entry.
type Rule struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Category    Category `yaml:"category"`
	Metric      Metric   `yaml:"metric"`
	Threshold   int      `yaml:"threshold"`
}

// LevelTitle maps a minimum level to a display title.
type LevelTitle struct {
	MinLevel int    `yaml:"min_level"`
	Title    string `yaml:"title"`
}

// Catalog is the static game content.
type Catalog struct {
	Titles       []LevelTitle                `yaml:"titles"`
	Achievements []Rule                      `yaml:"achievements"`
	Tags         map[schema.LogType][]string `yaml:"tags"`
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Titles) == 0 {
		return nil, fmt.Errorf("catalog has no level titles")
	}
	slices.SortFunc(c.Titles, func(a, b LevelTitle) int { return a.MinLevel - b.MinLevel })

	seen := make(map[string]bool, len(c.Achievements))
	for _, r := range c.Achievements {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog achievement without id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate achievement id %q", r.ID)
		}
		seen[r.ID] = true
		switch r.Metric {
		case MetricLevel, MetricLongestStreak, MetricLogCount, MetricTotalMinutes, MetricLogTypes, MetricStatTotal:
		default:
			return nil, fmt.Errorf("achievement %s: unknown metric %q", r.ID, r.Metric)
		}
	}
	return &c, nil
}

var defaultCatalog = mustParseCatalog(catalogYAML)

func mustParseCatalog(data []byte) *Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// LevelTitle returns the title of the highest tier whose minimum is at or
// below level.
func (c *Catalog) LevelTitle(level int) string {
	title := c.Titles[0].Title
	for _, t := range c.Titles {
		if level >= t.MinLevel {
			title = t.Title
		}
	}
	return title
}

// SuggestedTags lists the tags offered for a log type. Games have none.
func (c *Catalog) SuggestedTags(t schema.LogType) []string {
	return slices.Clone(c.Tags[t])
}

// Achievement is a catalog rule evaluated against current progress.
type Achievement struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"desc"`
	Category    Category `json:"category"`
	Unlocked    bool     `json:"unlocked"`
	Progress    int      `json:"progress"`
	Threshold   int      `json:"threshold"`
}

// Evaluate computes every achievement for the given progress. The result
// is derived on every call and never persisted.
func (c *Catalog) Evaluate(logs []schema.TrainingLog, level int, stats schema.Stats, today time.Time) []Achievement {
	metrics := measure(logs, level, stats, today)
	out := make([]Achievement, 0, len(c.Achievements))
	for _, r := range c.Achievements {
		v := metrics[r.Metric]
		out = append(out, Achievement{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Category:    r.Category,
			Unlocked:    v >= r.Threshold,
			Progress:    min(v, r.Threshold),
			Threshold:   r.Threshold,
		})
	}
	return out
}

func measure(logs []schema.TrainingLog, level int, stats schema.Stats, today time.Time) map[Metric]int {
	totalMinutes := 0
	types := make(map[schema.LogType]bool, len(schema.LogTypes))
	dates := make([]string, 0, len(logs))
	for _, l := range logs {
		totalMinutes += max(l.Duration, 0)
		if l.Type.Valid() {
			types[l.Type] = true
		}
		dates = append(dates, l.Date)
	}
	return map[Metric]int{
		MetricLevel:         level,
		MetricLongestStreak: ComputeStreak(dates, today).Longest,
		MetricLogCount:      len(logs),
		MetricTotalMinutes:  totalMinutes,
		MetricLogTypes:      len(types),
		MetricStatTotal:     stats.Total(),
	}
}

// ComputeAchievements evaluates the built-in catalog.
func ComputeAchievements(logs []schema.TrainingLog, level int, stats schema.Stats) []Achievement {
	return defaultCatalog.Evaluate(logs, level, stats, time.Now())
}

// Title returns the built-in title for level.
func Title(level int) string {
	return defaultCatalog.LevelTitle(level)
}
