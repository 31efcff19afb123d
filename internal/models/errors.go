package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation and lookup errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrChannelIDRequired indicates a required channel ID field is empty.
	ErrChannelIDRequired = errors.New("channel_id is required")

	// ErrSegmentIDRequired indicates a required segment ID field is zero.
	ErrSegmentIDRequired = errors.New("segment_id is required")

	// ErrRecordingIDRequired indicates a required recording ID field is zero.
	ErrRecordingIDRequired = errors.New("recording_id is required")

	// ErrStartTimeRequired indicates a required start time field is zero.
	ErrStartTimeRequired = errors.New("started_at is required")

	// ErrInvalidTimeRange indicates end time is before start time.
	ErrInvalidTimeRange = errors.New("ended_at must be after started_at")

	// ErrMediaPathRequired indicates a segment carries neither audio nor video.
	ErrMediaPathRequired = errors.New("segment needs an audio_path or a video_path")

	// ErrInvalidStatus indicates a status value outside the allowed set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidEventType indicates a visual event type outside the allowed set.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrTextRequired indicates a required text field is empty.
	ErrTextRequired = errors.New("text is required")

	// ErrModelNameRequired indicates a required model name field is empty.
	ErrModelNameRequired = errors.New("model_name is required")

	// ErrChannelNotFound indicates a channel lookup failed.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrSegmentNotFound indicates a segment lookup failed.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrRecordingNotFound indicates a recording lookup failed.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrTranscriptNotFound indicates a transcript lookup failed.
	ErrTranscriptNotFound = errors.New("transcript not found")

	// ErrSegmentHasNoAudio indicates a stage needs audio the segment lacks.
	ErrSegmentHasNoAudio = errors.New("segment has no audio media")

	// ErrSegmentHasNoVideo indicates a stage needs video the segment lacks.
	ErrSegmentHasNoVideo = errors.New("segment has no video media")
)
