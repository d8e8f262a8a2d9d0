package gormstore

import (
	"time"

	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// logModel is the training_logs table.
type logModel struct {
	ID           string       `gorm:"column:id;primaryKey;size:64"`
	UserID       string       `gorm:"column:user_id;size:128;not null;index:idx_training_logs_user_date,priority:1"`
	Date         string       `gorm:"column:date;size:10;not null;index:idx_training_logs_user_date,priority:2"`
	Type         string       `gorm:"column:type;size:16;not null"`
	Duration     int          `gorm:"column:duration;not null"`
	Satisfaction int          `gorm:"column:satisfaction;not null;default:0"`
	Note         string       `gorm:"column:note;type:text"`
	PhotoURL     *string      `gorm:"column:photo_url;type:text"`
	GainedStats  schema.Stats `gorm:"column:gained_stats;type:text;serializer:json"`
	Details      string       `gorm:"column:details;type:text"`
	CreatedAt    time.Time    `gorm:"column:created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at"`
}

func (logModel) TableName() string {
	return "training_logs"
}

func logModelFromRow(userID string, r remote.LogRow) logModel {
	details := string(r.Details)
	if details == "" {
		details = "{}"
	}
	return logModel{
		ID:           r.ID,
		UserID:       userID,
		Date:         r.Date,
		Type:         r.Type,
		Duration:     r.Duration,
		Satisfaction: r.Satisfaction,
		Note:         r.Note,
		PhotoURL:     r.PhotoURL,
		GainedStats:  r.GainedStats,
		Details:      details,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (m logModel) row() remote.LogRow {
	return remote.LogRow{
		ID:           m.ID,
		UserID:       m.UserID,
		Date:         m.Date,
		Type:         m.Type,
		Duration:     m.Duration,
		Satisfaction: m.Satisfaction,
		Note:         m.Note,
		PhotoURL:     m.PhotoURL,
		GainedStats:  m.GainedStats,
		Details:      []byte(m.Details),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// profileModel is the profiles table.
type profileModel struct {
	ID                 string       `gorm:"column:id;primaryKey;size:128"`
	ProfileName        string       `gorm:"column:profile_name;size:64"`
	GearColor          string       `gorm:"column:gear_color;size:7"`
	Level              int          `gorm:"column:level;not null;default:1"`
	Exp                int          `gorm:"column:exp;not null;default:0"`
	Stats              schema.Stats `gorm:"column:stats;type:text;serializer:json"`
	OnboardingComplete bool         `gorm:"column:onboarding_complete;not null;default:false"`
	InviteCode         string       `gorm:"column:invite_code;size:16"`
	UpdatedAt          time.Time    `gorm:"column:updated_at"`
}

func (profileModel) TableName() string {
	return "profiles"
}

func (m profileModel) row() remote.ProfileRow {
	return remote.ProfileRow{
		ID:                 m.ID,
		ProfileName:        m.ProfileName,
		GearColor:          m.GearColor,
		Level:              m.Level,
		Exp:                m.Exp,
		Stats:              m.Stats,
		OnboardingComplete: m.OnboardingComplete,
		InviteCode:         m.InviteCode,
		UpdatedAt:          m.UpdatedAt,
	}
}
