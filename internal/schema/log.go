package schema

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// LogType classifies a training session.
type LogType string

const (
	LogLesson   LogType = "lesson"
	LogGame     LogType = "game"
	LogPractice LogType = "practice"
)

// LogTypes lists every log type.
var LogTypes = []LogType{LogLesson, LogGame, LogPractice}

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	switch t {
	case LogLesson, LogGame, LogPractice:
		return true
	}
	return false
}

// Duration and satisfaction bounds.
const (
	MinDuration     = 1
	MaxDuration     = 480
	MaxSatisfaction = 5
)

// DateLayout is the calendar-day format used for log dates.
const DateLayout = "2006-01-02"

// ErrInvalidLog wraps every log validation failure.
var ErrInvalidLog = errors.New("invalid training log")

// TrainingLog is one recorded training session.
type TrainingLog struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Type         LogType `json:"type"`
	Duration     int     `json:"duration"`
	Satisfaction int     `json:"satisfaction"`
	Note         string  `json:"note,omitempty"`
	// Photo is an opaque image reference (an inline data URL locally, a
	// storage path remotely). It is carried through sync unchanged.
	Photo       string  `json:"photo,omitempty"`
	GainedStats Stats   `json:"gainedStats"`
	Details     Details `json:"details,omitempty"`
}

// NewLogID generates a globally unique log id.
func NewLogID() string {
	return uuid.NewString()
}

// ParseDate parses a log date. The second result is false for missing or
// malformed dates.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as a log date in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Validate checks field ranges and that details match the log type.
func (l *TrainingLog) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidLog)
	}
	if _, ok := ParseDate(l.Date); !ok {
		return fmt.Errorf("%w: date must be YYYY-MM-DD (got %q)", ErrInvalidLog, l.Date)
	}
	if !l.Type.Valid() {
		return fmt.Errorf("%w: type must be lesson, game or practice (got %q)", ErrInvalidLog, l.Type)
	}
	if l.Duration < MinDuration || l.Duration > MaxDuration {
		return fmt.Errorf("%w: duration must be between %d and %d minutes (got %d)", ErrInvalidLog, MinDuration, MaxDuration, l.Duration)
	}
	if l.Satisfaction < 0 || l.Satisfaction > MaxSatisfaction {
		return fmt.Errorf("%w: satisfaction must be between 0 and %d (got %d)", ErrInvalidLog, MaxSatisfaction, l.Satisfaction)
	}
	if err := l.GainedStats.ValidateDelta(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}
	if err := validateDetails(l.Type, l.Details); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}
	return nil
}

// Clone returns a deep copy of the log.
func (l TrainingLog) Clone() TrainingLog {
	out := l
	switch d := l.Details.(type) {
	case *GameDetails:
		if d != nil {
			c := *d
			c.Games = slices.Clone(d.Games)
			out.Details = &c
		}
	case *SessionDetails:
		if d != nil {
			c := *d
			c.Tags = slices.Clone(d.Tags)
			out.Details = &c
		}
	}
	return out
}

// logWire mirrors TrainingLog with the details left undecoded.
type logWire struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Type         LogType         `json:"type"`
	Duration     int             `json:"duration"`
	Satisfaction int             `json:"satisfaction"`
	Note         string          `json:"note"`
	Photo        string          `json:"photo"`
	GainedStats  Stats           `json:"gainedStats"`
	Details      json.RawMessage `json:"details"`
}

// UnmarshalJSON decodes a log, resolving the details variant from the type
// field. Details that do not fit the type are dropped rather than failing
// the whole document.
func (l *TrainingLog) UnmarshalJSON(data []byte) error {
	var w logWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	details, err := DecodeDetails(w.Type, w.Details)
	if err != nil {
		details = nil
	}
	*l = TrainingLog{
		ID:           w.ID,
		Date:         w.Date,
		Type:         w.Type,
		Duration:     w.Duration,
		Satisfaction: w.Satisfaction,
		Note:         w.Note,
		Photo:        w.Photo,
		GainedStats:  w.GainedStats,
		Details:      details,
	}
	return nil
}

// SortLogs orders logs by date, newest first. Logs sharing a date keep
// their relative order.
func SortLogs(logs []TrainingLog) {
	slices.SortStableFunc(logs, func(a, b TrainingLog) int {
		return strings.Compare(b.Date, a.Date)
	})
}

// Details is the type-dependent payload of a log: *GameDetails for games,
// *SessionDetails for lessons and practice.
type Details interface {
	detailsFor() []LogType
}

// MatchType is the format of one match in a game session.
type MatchType string

const (
	MatchDoubles MatchType = "doubles"
	MatchMixed   MatchType = "mixed"
	MatchSingles MatchType = "singles"
)

// MatchResult is the outcome of a match.
type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLose MatchResult = "lose"
)

// Weather during a game session.
type Weather string

const (
	WeatherSunny  Weather = "sunny"
	WeatherCloudy Weather = "cloudy"
	WeatherRain   Weather = "rain"
	WeatherSnow   Weather = "snow"
	WeatherWind   Weather = "wind"
)

// Weathers lists every weather value.
var Weathers = []Weather{WeatherSunny, WeatherCloudy, WeatherRain, WeatherSnow, WeatherWind}

// MaxMatchCount bounds GameDetails.MatchCount.
const MaxMatchCount = 10

// GameRecord is the score of one match.
type GameRecord struct {
	Type     MatchType   `json:"type"`
	MyScore  int         `json:"myScore"`
	OppScore int         `json:"oppScore"`
	Result   MatchResult `json:"result"`
}

// GameDetails describes a game session.
type GameDetails struct {
	MatchCount int          `json:"matchCount"`
	Games      []GameRecord `json:"games"`
	Weather    Weather      `json:"weather,omitempty"`
}

func (*GameDetails) detailsFor() []LogType { return []LogType{LogGame} }

// Wins counts matches with a win result.
func (g *GameDetails) Wins() int {
	n := 0
	for _, r := range g.Games {
		if r.Result == ResultWin {
			n++
		}
	}
	return n
}

// Validate checks the game payload.
func (g *GameDetails) Validate() error {
	if g.MatchCount < 1 || g.MatchCount > MaxMatchCount {
		return fmt.Errorf("matchCount must be between 1 and %d (got %d)", MaxMatchCount, g.MatchCount)
	}
	if g.Weather != "" && !slices.Contains(Weathers, g.Weather) {
		return fmt.Errorf("unknown weather %q", g.Weather)
	}
	for i, r := range g.Games {
		switch r.Type {
		case MatchDoubles, MatchMixed, MatchSingles:
		default:
			return fmt.Errorf("game %d: unknown match type %q", i+1, r.Type)
		}
		switch r.Result {
		case ResultWin, ResultLose:
		default:
			return fmt.Errorf("game %d: unknown result %q", i+1, r.Result)
		}
		if r.MyScore < 0 || r.OppScore < 0 {
			return fmt.Errorf("game %d: scores must be non-negative", i+1)
		}
	}
	return nil
}

// SessionDetails describes a lesson or practice session.
type SessionDetails struct {
	Tags []string `json:"tags"`
}

func (*SessionDetails) detailsFor() []LogType { return []LogType{LogLesson, LogPractice} }

// DecodeDetails decodes the raw details object for a log of type t.
// Empty input, JSON null and an empty object decode to nil.
func DecodeDetails(t LogType, raw []byte) (Details, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		return nil, nil
	}
	switch t {
	case LogGame:
		var g GameDetails
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("failed to decode game details: %w", err)
		}
		return &g, nil
	case LogLesson, LogPractice:
		var s SessionDetails
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", t, err)
		}
		return &s, nil
	}
	return nil, fmt.Errorf("no details variant for log type %q", t)
}

func validateDetails(t LogType, d Details) error {
	if d == nil {
		return nil
	}
	if !slices.Contains(d.detailsFor(), t) {
		return fmt.Errorf("%T does not fit a %s log", d, t)
	}
	switch v := d.(type) {
	case *GameDetails:
		if v == nil {
			return nil
		}
		return v.Validate()
	case *SessionDetails:
		return nil
	}
	return fmt.Errorf("unsupported details type %T", d)
}
