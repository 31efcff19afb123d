// Package repository defines data access interfaces for mobasher entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/mobasher/mobasher/internal/models"
)

// SegmentFilter narrows segment listings. Zero values mean "no constraint".
type SegmentFilter struct {
	ChannelID string
	Start     *time.Time
	End       *time.Time
	Status    string
	Limit     int
	Offset    int
}

// RecordingFilter narrows recording listings.
type RecordingFilter struct {
	ChannelID string
	Since     *time.Time
	Status    string
	Limit     int
	Offset    int
}

// TranscriptFilter narrows transcript listings.
type TranscriptFilter struct {
	ChannelID string
	Since     *time.Time
	Language  string
	Limit     int
	Offset    int
}

// VisualEventFilter narrows visual event listings.
type VisualEventFilter struct {
	ChannelID string
	SegmentID *uuid.UUID
	EventType string
	// Region filters OCR events by screen region recorded in data.
	Region string
	// Query is a substring match against the event's text payload.
	Query string
	Since *time.Time
	Until *time.Time
	// MinConfidence drops events below the threshold when > 0.
	MinConfidence float64
	Limit         int
	Offset        int
}

// MissingArtifactFilter selects completed segments whose pipeline output is
// absent, bounded by a lookback window. Used by the stage schedulers.
type MissingArtifactFilter struct {
	ChannelID string
	Since     time.Time
	Limit     int
}

// SemanticMatch is one nearest-neighbour search result.
type SemanticMatch struct {
	Segment  models.Segment
	Distance float64
}

// ChannelRepository defines operations for channel persistence.
type ChannelRepository interface {
	// Upsert creates the channel or updates its mutable fields by id.
	Upsert(ctx context.Context, channel *models.Channel) error
	// GetByID retrieves a channel by id; nil when absent.
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	// List retrieves channels ordered by creation time.
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Channel, error)
	// SetActive flips the active flag for a channel.
	SetActive(ctx context.Context, id string, active bool) error
	// Delete deletes a channel by id.
	Delete(ctx context.Context, id string) error
	// Stats returns per-channel segment and transcript aggregates.
	Stats(ctx context.Context, id string) (*models.ChannelStats, error)
}

// RecordingRepository defines operations for capture sessions.
type RecordingRepository interface {
	// Create inserts a new recording row.
	Create(ctx context.Context, rec *models.Recording) error
	// Complete closes the recording with a final status and optional error.
	Complete(ctx context.Context, id uuid.UUID, startedAt time.Time, status string, errorMessage *string) error
	// Get retrieves a recording by composite key; nil when absent.
	Get(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Recording, error)
	// List retrieves recordings newest first.
	List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error)
	// MarkStaleRunning fails running recordings that started before cutoff.
	MarkStaleRunning(ctx context.Context, cutoff time.Time) (int64, error)
}

// SegmentRepository defines operations for media segments.
type SegmentRepository interface {
	// Upsert inserts the segment or merges it into the existing row:
	// media paths are only filled when absent, file size keeps the maximum,
	// ended_at and status always take the incoming values.
	Upsert(ctx context.Context, seg *models.Segment) error
	// Get retrieves a segment by composite key; nil when absent.
	Get(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Segment, error)
	// List retrieves segments newest first.
	List(ctx context.Context, filter SegmentFilter) ([]*models.Segment, error)
	// ListMissingTranscripts returns completed segments with audio and no
	// transcript row, newest first.
	ListMissingTranscripts(ctx context.Context, filter MissingArtifactFilter) ([]*models.Segment, error)
	// ListMissingVisualEvents returns completed segments with video and no
	// visual event of the given type, newest first.
	ListMissingVisualEvents(ctx context.Context, eventType string, filter MissingArtifactFilter) ([]*models.Segment, error)
	// ListMissingEntities returns transcribed segments with no entity rows,
	// newest first.
	ListMissingEntities(ctx context.Context, filter MissingArtifactFilter) ([]*models.Segment, error)
	// SetStageStatus updates one pipeline stage column for a segment.
	SetStageStatus(ctx context.Context, id uuid.UUID, startedAt time.Time, stage, status string) error
	// DeleteOlderThan removes segment rows started before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TranscriptRepository defines operations for ASR output.
type TranscriptRepository interface {
	// Upsert inserts or replaces the transcript for a segment.
	Upsert(ctx context.Context, tr *models.Transcript) error
	// Get retrieves the transcript for a segment; nil when absent.
	Get(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time) (*models.Transcript, error)
	// ListRecent joins segments to their transcripts, newest first.
	ListRecent(ctx context.Context, filter TranscriptFilter) ([]*models.Transcript, error)
	// Search returns transcripts whose text contains the query, newest first.
	Search(ctx context.Context, query string, filter TranscriptFilter) ([]*models.Transcript, error)
	// DeleteOlderThan removes transcripts for segments started before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmbeddingRepository defines operations for segment embeddings.
type EmbeddingRepository interface {
	// Upsert inserts or replaces the embedding for a segment.
	Upsert(ctx context.Context, emb *models.SegmentEmbedding) error
	// Get retrieves the embedding for a segment; nil when absent.
	Get(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time) (*models.SegmentEmbedding, error)
	// SemanticSearch returns the topK segments nearest to the query vector
	// by L2 distance. PostgreSQL only.
	SemanticSearch(ctx context.Context, query pgvector.Vector, topK int, modelName, channelID string) ([]SemanticMatch, error)
	// DeleteOlderThan removes embeddings for segments started before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// VisualEventRepository defines operations for vision output.
type VisualEventRepository interface {
	// CreateBatch inserts visual events in one batch.
	CreateBatch(ctx context.Context, events []*models.VisualEvent) error
	// List retrieves events newest first.
	List(ctx context.Context, filter VisualEventFilter) ([]*models.VisualEvent, error)
	// CountForSegment counts events of one type for a segment.
	CountForSegment(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time, eventType string) (int64, error)
	// DeleteForSegment removes events of one type for a segment, used before
	// re-running a vision stage.
	DeleteForSegment(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time, eventType string) (int64, error)
	// DeleteOlderThan removes events created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EntityRepository defines operations for NLP entities.
type EntityRepository interface {
	// ReplaceForSegment deletes the segment's entities and inserts the new
	// set in one transaction.
	ReplaceForSegment(ctx context.Context, segmentID uuid.UUID, entities []*models.Entity) error
	// ListBySegment retrieves a segment's entities.
	ListBySegment(ctx context.Context, segmentID uuid.UUID) ([]*models.Entity, error)
	// ListByLabel retrieves recent entities for one label, newest first.
	ListByLabel(ctx context.Context, label string, since *time.Time, limit, offset int) ([]*models.Entity, error)
	// DeleteOlderThan removes entities created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertRepository defines operations for watchlist alerts.
type AlertRepository interface {
	// CreateBatch inserts alerts in one batch.
	CreateBatch(ctx context.Context, alerts []*models.Alert) error
	// List retrieves alerts newest first, optionally by channel or category.
	List(ctx context.Context, channelID, category string, since *time.Time, limit, offset int) ([]*models.Alert, error)
	// DeleteOlderThan removes alerts created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SystemMetricRepository defines operations for operational samples.
type SystemMetricRepository interface {
	// Record inserts one sample.
	Record(ctx context.Context, metric *models.SystemMetric) error
	// ListRecent retrieves samples for one metric name, newest first.
	ListRecent(ctx context.Context, name string, since *time.Time, limit int) ([]*models.SystemMetric, error)
	// DeleteOlderThan removes samples taken before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
