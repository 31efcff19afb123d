package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Segment statuses.
const (
	SegmentStatusCreated    = "created"
	SegmentStatusProcessing = "processing"
	SegmentStatusCompleted  = "completed"
	SegmentStatusFailed     = "failed"
)

// Per-stage statuses tracked on the segment row.
const (
	StageStatusPending    = "pending"
	StageStatusQueued     = "queued"
	StageStatusProcessing = "processing"
	StageStatusCompleted  = "completed"
	StageStatusFailed     = "failed"
)

// Segment is one fixed-length media slice of a recording. The audio and
// video legs write separate files for the same time window; the detector
// merges them into a single row keyed (id, started_at), where id is derived
// deterministically from channel and start time.
type Segment struct {
	ID            uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	StartedAt     time.Time `gorm:"primaryKey;index:idx_segments_channel_time,priority:2" json:"started_at"`
	RecordingID   uuid.UUID `gorm:"not null;type:uuid;index:idx_segments_recording" json:"recording_id"`
	ChannelID     string    `gorm:"not null;size:64;index:idx_segments_channel_time,priority:1" json:"channel_id"`
	EndedAt       time.Time `gorm:"not null" json:"ended_at"`
	AudioPath     *string   `gorm:"size:4096" json:"audio_path,omitempty"`
	VideoPath     *string   `gorm:"size:4096" json:"video_path,omitempty"`
	FileSizeBytes *int64    `json:"file_size_bytes,omitempty"`
	Status        string    `gorm:"not null;default:created;size:32" json:"status"`
	ASRStatus     string    `gorm:"not null;default:pending;size:32" json:"asr_status"`
	VisionStatus  string    `gorm:"not null;default:pending;size:32" json:"vision_status"`
	NLPStatus     string    `gorm:"not null;default:pending;size:32" json:"nlp_status"`
	Extra         JSONMap   `json:"extra,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the table name for Segment.
func (Segment) TableName() string {
	return "segments"
}

// Duration returns the segment length.
func (s *Segment) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// HasAudio reports whether the row carries an audio file.
func (s *Segment) HasAudio() bool {
	return s.AudioPath != nil && *s.AudioPath != ""
}

// HasVideo reports whether the row carries a video file.
func (s *Segment) HasVideo() bool {
	return s.VideoPath != nil && *s.VideoPath != ""
}

func validSegmentStatus(s string) bool {
	switch s {
	case SegmentStatusCreated, SegmentStatusProcessing, SegmentStatusCompleted, SegmentStatusFailed:
		return true
	}
	return false
}

// ValidStageStatus reports whether s is an allowed per-stage status.
func ValidStageStatus(s string) bool {
	switch s {
	case StageStatusPending, StageStatusQueued, StageStatusProcessing, StageStatusCompleted, StageStatusFailed:
		return true
	}
	return false
}

// Validate performs basic validation on the segment.
func (s *Segment) Validate() error {
	if s.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if s.RecordingID == uuid.Nil {
		return ErrRecordingIDRequired
	}
	if s.StartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	if !s.EndedAt.After(s.StartedAt) {
		return ErrInvalidTimeRange
	}
	if !s.HasAudio() && !s.HasVideo() {
		return ErrMediaPathRequired
	}
	if !validSegmentStatus(s.Status) {
		return ErrInvalidStatus
	}
	for _, st := range []string{s.ASRStatus, s.VisionStatus, s.NLPStatus} {
		if !ValidStageStatus(st) {
			return ErrInvalidStatus
		}
	}
	return nil
}

// BeforeCreate derives the deterministic id and defaults before insert.
func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = DeterministicSegmentID(s.ChannelID, s.StartedAt)
	}
	if s.Status == "" {
		s.Status = SegmentStatusCreated
	}
	if s.ASRStatus == "" {
		s.ASRStatus = StageStatusPending
	}
	if s.VisionStatus == "" {
		s.VisionStatus = StageStatusPending
	}
	if s.NLPStatus == "" {
		s.NLPStatus = StageStatusPending
	}
	return s.Validate()
}

// BeforeUpdate validates the segment before update.
func (s *Segment) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}
