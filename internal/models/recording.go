package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recording statuses.
const (
	RecordingStatusRunning   = "running"
	RecordingStatusCompleted = "completed"
	RecordingStatusFailed    = "failed"
	RecordingStatusStopped   = "stopped"
)

// Recording is one capture session for a channel. Hypertable partitioned on
// started_at, so the primary key is composite (id, started_at).
type Recording struct {
	ID           uuid.UUID  `gorm:"primaryKey;type:uuid" json:"id"`
	StartedAt    time.Time  `gorm:"primaryKey" json:"started_at"`
	ChannelID    string     `gorm:"not null;size:64;index:idx_recordings_channel_time,priority:1" json:"channel_id"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Status       string     `gorm:"not null;default:running;size:32" json:"status"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	Extra        JSONMap    `json:"extra,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

func validRecordingStatus(s string) bool {
	switch s {
	case RecordingStatusRunning, RecordingStatusCompleted, RecordingStatusFailed, RecordingStatusStopped:
		return true
	}
	return false
}

// Validate performs basic validation on the recording.
func (r *Recording) Validate() error {
	if r.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if r.StartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	if !validRecordingStatus(r.Status) {
		return ErrInvalidStatus
	}
	if r.EndedAt != nil && r.EndedAt.Before(r.StartedAt) {
		return ErrInvalidTimeRange
	}
	return nil
}

// BeforeCreate generates the id and defaults before insert.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RecordingStatusRunning
	}
	return r.Validate()
}

// BeforeUpdate validates the recording before update.
func (r *Recording) BeforeUpdate(tx *gorm.DB) error {
	return r.Validate()
}
