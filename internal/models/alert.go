package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert is a watchlist hit: a configured phrase found in a transcript.
type Alert struct {
	ID            ULID      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ChannelID     string    `gorm:"not null;size:64;index" json:"channel_id"`
	SegmentID     uuid.UUID `gorm:"not null;type:uuid;index" json:"segment_id"`
	MatchedPhrase string    `gorm:"not null;type:text" json:"matched_phrase"`
	Category      string    `gorm:"not null;size:64;index" json:"category"`
	Score         *float64  `json:"score,omitempty"`
	Payload       JSONMap   `json:"payload,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the table name for Alert.
func (Alert) TableName() string {
	return "alerts"
}

// Validate performs basic validation on the alert.
func (a *Alert) Validate() error {
	if a.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if a.SegmentID == uuid.Nil {
		return ErrSegmentIDRequired
	}
	if a.MatchedPhrase == "" {
		return ErrTextRequired
	}
	if a.Category == "" {
		return ErrNameRequired
	}
	return nil
}

// BeforeCreate generates the id and validates the alert.
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID.IsZero() {
		a.ID = NewULID()
	}
	return a.Validate()
}
