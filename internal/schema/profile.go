package schema

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// Profile constants.
const (
	// MaxExp is the experience needed for one level.
	MaxExp = 100

	DefaultGearColor = "#2a9d8f"
)

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid profile")

var gearColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Profile is the user's progress and cosmetic state.
type Profile struct {
	Level              int    `json:"level"`
	Exp                int    `json:"exp"`
	Stats              Stats  `json:"stats"`
	GearColor          string `json:"gearColor"`
	ProfileName        string `json:"profileName"`
	OnboardingComplete bool   `json:"onboardingComplete"`
}

// DefaultProfile returns the profile of a fresh install.
func DefaultProfile() Profile {
	return Profile{
		Level:     1,
		Exp:       0,
		Stats:     DefaultStats(),
		GearColor: DefaultGearColor,
	}
}

// Validate checks the profile invariants.
func (p *Profile) Validate() error {
	if p.Level < 1 {
		return fmt.Errorf("%w: level must be at least 1 (got %d)", ErrInvalidProfile, p.Level)
	}
	if p.Exp < 0 || p.Exp >= MaxExp {
		return fmt.Errorf("%w: exp must be in [0, %d) (got %d)", ErrInvalidProfile, MaxExp, p.Exp)
	}
	for _, k := range StatKeys {
		if v := p.Stats.Get(k); v < MinStat {
			return fmt.Errorf("%w: %s must be at least %d (got %d)", ErrInvalidProfile, k, MinStat, v)
		}
	}
	if err := ValidateGearColor(p.GearColor); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

// ValidateGearColor checks a #rrggbb color token.
func ValidateGearColor(c string) error {
	if !gearColorPattern.MatchString(c) {
		return fmt.Errorf("gear color must look like #2a9d8f (got %q)", c)
	}
	return nil
}

// Document is the complete persisted local state.
type Document struct {
	// SchemaVersion is a semantic version; documents written before
	// versioning have none.
	SchemaVersion string `json:"schemaVersion,omitempty"`
	Profile
	Logs []TrainingLog `json:"logs"`
}

// DefaultDocument returns an empty journal at version.
func DefaultDocument(version string) *Document {
	return &Document{
		SchemaVersion: version,
		Profile:       DefaultProfile(),
		Logs:          []TrainingLog{},
	}
}

// SetDefaults fills fields that legacy documents may lack.
func (d *Document) SetDefaults() {
	if d.Level < 1 {
		d.Level = 1
	}
	if d.Exp < 0 {
		d.Exp = 0
	}
	for _, k := range StatKeys {
		if d.Stats.Get(k) < MinStat {
			d.Stats.Set(k, MinStat)
		}
	}
	if d.GearColor == "" {
		d.GearColor = DefaultGearColor
	}
	if d.Logs == nil {
		d.Logs = []TrainingLog{}
	}
}

// Validate checks the profile and every log, and that log ids are unique.
func (d *Document) Validate() error {
	if err := d.Profile.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(d.Logs))
	for i := range d.Logs {
		if err := d.Logs[i].Validate(); err != nil {
			return fmt.Errorf("log %d: %w", i, err)
		}
		if _, dup := seen[d.Logs[i].ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidLog, d.Logs[i].ID)
		}
		seen[d.Logs[i].ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.Logs = make([]TrainingLog, len(d.Logs))
	for i := range d.Logs {
		out.Logs[i] = d.Logs[i].Clone()
	}
	return &out
}

// FindLog returns the index of the log with id, or -1.
func (d *Document) FindLog(id string) int {
	return slices.IndexFunc(d.Logs, func(l TrainingLog) bool { return l.ID == id })
}

// SortedLogs returns a copy of the logs ordered newest first.
func (d *Document) SortedLogs() []TrainingLog {
	out := d.Clone().Logs
	SortLogs(out)
	return out
}

// LogDates returns the date of every log, in storage order.
func (d *Document) LogDates() []string {
	dates := make([]string, 0, len(d.Logs))
	for _, l := range d.Logs {
		dates = append(dates, l.Date)
	}
	return dates
}
