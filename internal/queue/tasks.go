// Package queue carries analysis work from the stage schedulers to the
// workers over Redis. Tasks are named <stage>.<operation> and every segment
// task gets a SET-NX dedupe key so overlapping scheduler passes enqueue a
// window at most once per TTL.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names. The prefix before the dot is the pipeline stage and
// doubles as the queue name.
const (
	TaskASRTranscribe     = "asr.transcribe_segment"
	TaskASRPing           = "asr.ping"
	TaskVisionOCR         = "vision.ocr_segment"
	TaskVisionObjects     = "vision.objects_segment"
	TaskVisionFaces       = "vision.faces_segment"
	TaskVisionScreenshots = "vision.screenshots_segment"
	TaskNLPEntities       = "nlp.entities_for_transcript"
	TaskNLPAlerts         = "nlp.alerts_for_transcript"
)

// Queue names, one per stage.
const (
	QueueASR    = "asr"
	QueueVision = "vision"
	QueueNLP    = "nlp"
)

// StageOf returns the stage (and queue) a task type belongs to.
func StageOf(taskType string) string {
	if i := strings.IndexByte(taskType, '.'); i > 0 {
		return taskType[:i]
	}
	return taskType
}

// SegmentPayload identifies the segment a task operates on. StartedAt rides
// along because every table is keyed (id, started_at).
type SegmentPayload struct {
	SegmentID uuid.UUID `json:"segment_id"`
	StartedAt time.Time `json:"started_at"`
	ChannelID string    `json:"channel_id"`
}

// NewSegmentTask builds an asynq task for a segment.
func NewSegmentTask(taskType string, payload SegmentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data), nil
}

// ParseSegmentPayload decodes a segment task payload.
func ParseSegmentPayload(t *asynq.Task) (SegmentPayload, error) {
	var p SegmentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return SegmentPayload{}, fmt.Errorf("unmarshaling %s payload: %w", t.Type(), err)
	}
	if p.SegmentID == uuid.Nil {
		return SegmentPayload{}, fmt.Errorf("%s payload missing segment_id", t.Type())
	}
	if p.StartedAt.IsZero() {
		return SegmentPayload{}, fmt.Errorf("%s payload missing started_at", t.Type())
	}
	return p, nil
}

// DedupeKey is the Redis key guarding one segment task instance:
// <task-type>:queued:<segment-id>:<start-RFC3339>. Keyed by task type, not
// queue, so the sibling vision artifacts of one segment enqueue
// independently.
func DedupeKey(taskType string, segmentID uuid.UUID, startedAt time.Time) string {
	return fmt.Sprintf("%s:queued:%s:%s", taskType, segmentID, startedAt.UTC().Format(time.RFC3339))
}
