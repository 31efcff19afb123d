package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entity is a dictionary match found in a transcript: a named thing with its
// label and character offsets into the normalized text.
type Entity struct {
	ID         ULID      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SegmentID  uuid.UUID `gorm:"not null;type:uuid;index:idx_entities_segment,priority:1" json:"segment_id"`
	ChannelID  string    `gorm:"not null;size:64;index" json:"channel_id"`
	StartedAt  time.Time `gorm:"not null;index:idx_entities_segment,priority:2" json:"started_at"`
	EndedAt    time.Time `gorm:"not null" json:"ended_at"`
	Text       string    `gorm:"not null;type:text" json:"text"`
	TextNorm   *string   `gorm:"type:text" json:"text_norm,omitempty"`
	Label      string    `gorm:"not null;size:64;index" json:"label"`
	Confidence *float64  `json:"confidence,omitempty"`
	CharStart  *int      `json:"char_start,omitempty"`
	CharEnd    *int      `json:"char_end,omitempty"`
	Model      string    `gorm:"not null;size:64" json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for Entity.
func (Entity) TableName() string {
	return "entities"
}

// Validate performs basic validation on the entity.
func (e *Entity) Validate() error {
	if e.SegmentID == uuid.Nil {
		return ErrSegmentIDRequired
	}
	if e.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if e.Text == "" {
		return ErrTextRequired
	}
	if e.Label == "" {
		return ErrNameRequired
	}
	return nil
}

// BeforeCreate generates the id and validates the entity.
func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID.IsZero() {
		e.ID = NewULID()
	}
	return e.Validate()
}
