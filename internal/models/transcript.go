package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transcript is the ASR output for one segment, keyed by the segment's
// composite key so re-runs replace rather than accumulate.
type Transcript struct {
	SegmentID        uuid.UUID `gorm:"primaryKey;type:uuid" json:"segment_id"`
	SegmentStartedAt time.Time `gorm:"primaryKey" json:"segment_started_at"`
	Language         string    `gorm:"not null;default:ar;size:16;index" json:"language"`
	Text             string    `gorm:"not null;type:text" json:"text"`
	TextNorm         *string   `gorm:"type:text" json:"text_norm,omitempty"`
	Words            WordList  `json:"words,omitempty"`
	Confidence       *float64  `json:"confidence,omitempty"`
	ModelName        string    `gorm:"not null;size:128" json:"model_name"`
	ModelVersion     *string   `gorm:"size:128" json:"model_version,omitempty"`
	ProcessingTimeMs *int      `json:"processing_time_ms,omitempty"`
	EngineTimeMs     *int      `json:"engine_time_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the table name for Transcript.
func (Transcript) TableName() string {
	return "transcripts"
}

// NormalizedText returns text_norm when present, otherwise the raw text.
func (t *Transcript) NormalizedText() string {
	if t.TextNorm != nil && *t.TextNorm != "" {
		return *t.TextNorm
	}
	return t.Text
}

// Validate performs basic validation on the transcript.
func (t *Transcript) Validate() error {
	if t.SegmentID == uuid.Nil {
		return ErrSegmentIDRequired
	}
	if t.SegmentStartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	if t.ModelName == "" {
		return ErrModelNameRequired
	}
	return nil
}

// BeforeCreate validates the transcript and defaults the language.
func (t *Transcript) BeforeCreate(tx *gorm.DB) error {
	if t.Language == "" {
		t.Language = "ar"
	}
	return t.Validate()
}

// BeforeUpdate validates the transcript before update.
func (t *Transcript) BeforeUpdate(tx *gorm.DB) error {
	return t.Validate()
}
