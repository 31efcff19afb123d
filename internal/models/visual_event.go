package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visual event types.
const (
	EventTypeObject      = "object"
	EventTypeFace        = "face"
	EventTypeOCR         = "ocr"
	EventTypeOCRSpan     = "ocr_span"
	EventTypeLogo        = "logo"
	EventTypeSceneChange = "scene_change"
	EventTypeScreenshot  = "screenshot"
)

// VisualEvent is one computer-vision observation inside a segment: a raw OCR
// token, a merged OCR span, a detected object or face, or a screenshot
// record. Append-only hypertable keyed (id, created_at).
type VisualEvent struct {
	EventModel

	SegmentID        uuid.UUID `gorm:"not null;type:uuid;index:idx_visual_events_segment,priority:1" json:"segment_id"`
	SegmentStartedAt time.Time `gorm:"not null;index:idx_visual_events_segment,priority:2" json:"segment_started_at"`
	ChannelID        string    `gorm:"not null;size:64" json:"channel_id"`
	// TimestampOffset is seconds from the segment start.
	TimestampOffset float64  `gorm:"not null" json:"timestamp_offset"`
	EventType       string   `gorm:"not null;size:32;index" json:"event_type"`
	BBox            IntArray `json:"bbox,omitempty"` // [x, y, width, height]
	Confidence      *float64 `json:"confidence,omitempty"`
	Data            JSONMap  `gorm:"not null" json:"data"`
}

// TableName returns the table name for VisualEvent.
func (VisualEvent) TableName() string {
	return "visual_events"
}

// ValidEventType reports whether t is an allowed visual event type.
func ValidEventType(t string) bool {
	switch t {
	case EventTypeObject, EventTypeFace, EventTypeOCR, EventTypeOCRSpan,
		EventTypeLogo, EventTypeSceneChange, EventTypeScreenshot:
		return true
	}
	return false
}

// Validate performs basic validation on the event.
func (v *VisualEvent) Validate() error {
	if v.SegmentID == uuid.Nil {
		return ErrSegmentIDRequired
	}
	if v.SegmentStartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	if v.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if !ValidEventType(v.EventType) {
		return ErrInvalidEventType
	}
	return nil
}

// BeforeCreate generates the id and validates the event.
func (v *VisualEvent) BeforeCreate(tx *gorm.DB) error {
	if err := v.EventModel.BeforeCreate(tx); err != nil {
		return err
	}
	return v.Validate()
}
