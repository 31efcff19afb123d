package models

import (
	"time"

	"gorm.io/gorm"
)

// Channel is a TV channel registration: identity, upstream URL and state.
// The capture parameters live in the per-channel YAML descriptor; the row
// exists so recordings, segments and events have something to hang off.
type Channel struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	URL         string    `gorm:"not null;size:4096" json:"url"`
	Headers     JSONMap   `json:"headers,omitempty"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// Validate performs basic validation on the channel.
func (c *Channel) Validate() error {
	if c.ID == "" {
		return ErrChannelIDRequired
	}
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.URL == "" {
		return ErrURLRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// ChannelStats is the per-channel aggregate used by status output.
type ChannelStats struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	TotalSegments       int64      `json:"total_segments"`
	TranscribedSegments int64      `json:"transcribed_segments"`
	AvgConfidence       *float64   `json:"avg_confidence,omitempty"`
	LastSegmentTime     *time.Time `json:"last_segment_time,omitempty"`
}
