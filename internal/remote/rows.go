package remote

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// LogRow is a training_logs row.
type LogRow struct {
	ID           string          `json:"id" validate:"required,max=64"`
	UserID       string          `json:"user_id" validate:"required,max=128"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	Type         string          `json:"type" validate:"required,oneof=lesson game practice"`
	Duration     int             `json:"duration" validate:"min=1,max=480"`
	Satisfaction int             `json:"satisfaction" validate:"min=0,max=5"`
	Note         string          `json:"note"`
	PhotoURL     *string         `json:"photo_url"`
	GainedStats  schema.Stats    `json:"gained_stats"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FromLog maps a local log to a row owned by userID, stamped at now.
func FromLog(userID string, l schema.TrainingLog, now time.Time) (LogRow, error) {
	details := json.RawMessage(`{}`)
	if l.Details != nil {
		data, err := json.Marshal(l.Details)
		if err != nil {
			return LogRow{}, fmt.Errorf("failed to marshal details of %s: %w", l.ID, err)
		}
		details = data
	}

	var photo *string
	if l.Photo != "" {
		p := l.Photo
		photo = &p
	}

	return LogRow{
		ID:           l.ID,
		UserID:       userID,
		Date:         l.Date,
		Type:         string(l.Type),
		Duration:     l.Duration,
		Satisfaction: l.Satisfaction,
		Note:         l.Note,
		PhotoURL:     photo,
		GainedStats:  l.GainedStats,
		Details:      details,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ToLog maps a row back to the local shape. Details that do not decode for
// the row's type are dropped.
func (r LogRow) ToLog() schema.TrainingLog {
	t := schema.LogType(r.Type)
	details, err := schema.DecodeDetails(t, r.Details)
	if err != nil {
		details = nil
	}
	l := schema.TrainingLog{
		ID:           r.ID,
		Date:         r.Date,
		Type:         t,
		Duration:     r.Duration,
		Satisfaction: r.Satisfaction,
		Note:         r.Note,
		GainedStats:  r.GainedStats,
		Details:      details,
	}
	if r.PhotoURL != nil {
		l.Photo = *r.PhotoURL
	}
	return l
}

// ProfileRow is a profiles row.
type ProfileRow struct {
	ID                 string       `json:"id"`
	ProfileName        string       `json:"profile_name"`
	GearColor          string       `json:"gear_color"`
	Level              int          `json:"level"`
	Exp                int          `json:"exp"`
	Stats              schema.Stats `json:"stats"`
	OnboardingComplete bool         `json:"onboarding_complete"`
	InviteCode         string       `json:"invite_code,omitempty"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	ProfileName        *string       `json:"profile_name,omitempty" validate:"omitempty,max=40"`
	GearColor          *string       `json:"gear_color,omitempty" validate:"omitempty,hexcolor"`
	Level              *int          `json:"level,omitempty" validate:"omitempty,min=1"`
	Exp                *int          `json:"exp,omitempty" validate:"omitempty,min=0"`
	Stats              *schema.Stats `json:"stats,omitempty"`
	OnboardingComplete *bool         `json:"onboarding_complete,omitempty"`
}

// IsEmpty reports whether the patch sets nothing.
func (p ProfilePatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Columns returns the set fields keyed by column name.
func (p ProfilePatch) Columns() map[string]any {
	cols := make(map[string]any, 6)
	if p.ProfileName != nil {
		cols["profile_name"] = *p.ProfileName
	}
	if p.GearColor != nil {
		cols["gear_color"] = *p.GearColor
	}
	if p.Level != nil {
		cols["level"] = *p.Level
	}
	if p.Exp != nil {
		cols["exp"] = *p.Exp
	}
	if p.Stats != nil {
		cols["stats"] = *p.Stats
	}
	if p.OnboardingComplete != nil {
		cols["onboarding_complete"] = *p.OnboardingComplete
	}
	return cols
}

// Apply returns row with the patch fields applied.
func (p ProfilePatch) Apply(row ProfileRow) ProfileRow {
	if p.ProfileName != nil {
		row.ProfileName = *p.ProfileName
	}
	if p.GearColor != nil {
		row.GearColor = *p.GearColor
	}
	if p.Level != nil {
		row.Level = *p.Level
	}
	if p.Exp != nil {
		row.Exp = *p.Exp
	}
	if p.Stats != nil {
		row.Stats = *p.Stats
	}
	if p.OnboardingComplete != nil {
		row.OnboardingComplete = *p.OnboardingComplete
	}
	return row
}

// ProfilePatchFromDocument builds the full patch used when a local journal
// is first uploaded.
func ProfilePatchFromDocument(doc *schema.Document) ProfilePatch {
	name, color := doc.ProfileName, doc.GearColor
	if color == "" {
		color = schema.DefaultGearColor
	}
	level, exp := max(doc.Level, 1), max(doc.Exp, 0)
	stats := doc.Stats
	onboarded := true
	return ProfilePatch{
		ProfileName:        &name,
		GearColor:          &color,
		Level:              &level,
		Exp:                &exp,
		Stats:              &stats,
		OnboardingComplete: &onboarded,
	}
}
