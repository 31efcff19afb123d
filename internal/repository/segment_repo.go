package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// Pipeline stage names, matching the per-stage status columns on segments.
const (
	StageASR    = "asr"
	StageVision = "vision"
	StageNLP    = "nlp"
)

// segmentRepo implements SegmentRepository using GORM.
type segmentRepo struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(db *gorm.DB) *segmentRepo {
	return &segmentRepo{db: db}
}

// Upsert inserts the segment or merges it into the existing row. The audio
// and video legs of a channel finish the same time window independently, so
// two upserts race for one row: media paths only fill empty slots and
// file_size_bytes keeps the maximum, while ended_at and status always take
// the incoming values. Losing the insert race surfaces as a duplicate-key
// error; one re-read picks up the winner's row and merges into it.
func (r *segmentRepo) Upsert(ctx context.Context, seg *models.Segment) error {
	err := r.merge(ctx, seg)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = r.merge(ctx, seg)
	}
	return err
}

func (r *segmentRepo) merge(ctx context.Context, seg *models.Segment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Segment
		err := tx.Where("id = ? AND started_at = ?", seg.ID, seg.StartedAt).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if createErr := tx.Create(seg).Error; createErr != nil {
				return fmt.Errorf("creating segment: %w", createErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading segment for merge: %w", err)
		}

		if seg.HasAudio() && !existing.HasAudio() {
			existing.AudioPath = seg.AudioPath
		}
		if seg.HasVideo() && !existing.HasVideo() {
			existing.VideoPath = seg.VideoPath
		}
		if seg.FileSizeBytes != nil &&
			(existing.FileSizeBytes == nil || *seg.FileSizeBytes > *existing.FileSizeBytes) {
			existing.FileSizeBytes = seg.FileSizeBytes
		}
		existing.EndedAt = seg.EndedAt
		existing.Status = seg.Status

		if saveErr := tx.Save(&existing).Error; saveErr != nil {
			return fmt.Errorf("merging segment: %w", saveErr)
		}
		*seg = existing
		return nil
	})
}

// Get retrieves a segment by composite key.
func (r *segmentRepo) Get(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Segment, error) {
	var seg models.Segment
	err := r.db.WithContext(ctx).
		Where("id = ? AND started_at = ?", id, startedAt).
		First(&seg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting segment: %w", err)
	}
	return &seg, nil
}

// List retrieves segments newest first.
func (r *segmentRepo) List(ctx context.Context, filter SegmentFilter) ([]*models.Segment, error) {
	q := r.db.WithContext(ctx).Model(&models.Segment{})
	if filter.ChannelID != "" {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Start != nil {
		q = q.Where("started_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("started_at < ?", *filter.End)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var segs []*models.Segment
	if err := q.Order("started_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	return segs, nil
}

// ListMissingTranscripts returns completed segments with audio and no
// transcript row, newest first.
func (r *segmentRepo) ListMissingTranscripts(ctx context.Context, filter MissingArtifactFilter) ([]*models.Segment, error) {
	q := r.db.WithContext(ctx).Model(&models.Segment{}).
		Where("audio_path IS NOT NULL AND audio_path != ''").
		Where("status = ?", models.SegmentStatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM transcripts WHERE transcripts.segment_id = segments.id AND transcripts.segment_started_at = segments.started_at)")
	return r.finishMissing(q, filter)
}

// ListMissingVisualEvents returns completed segments with video and no
// visual event of the given type, newest first.
func (r *segmentRepo) ListMissingVisualEvents(ctx context.Context, eventType string, filter MissingArtifactFilter) ([]*models.Segment, error) {
	q := r.db.WithContext(ctx).Model(&models.Segment{}).
		Where("video_path IS NOT NULL AND video_path != ''").
		Where("status = ?", models.SegmentStatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM visual_events WHERE visual_events.segment_id = segments.id AND visual_events.segment_started_at = segments.started_at AND visual_events.event_type = ?)", eventType)
	return r.finishMissing(q, filter)
}

// ListMissingEntities returns transcribed segments with no entity rows,
// newest first.
func (r *segmentRepo) ListMissingEntities(ctx context.Context, filter MissingArtifactFilter) ([]*models.Segment, error) {
	q := r.db.WithContext(ctx).Model(&models.Segment{}).
		Where("EXISTS (SELECT 1 FROM transcripts WHERE transcripts.segment_id = segments.id AND transcripts.segment_started_at = segments.started_at)").
		Where("NOT EXISTS (SELECT 1 FROM entities WHERE entities.segment_id = segments.id)")
	return r.finishMissing(q, filter)
}

func (r *segmentRepo) finishMissing(q *gorm.DB, filter MissingArtifactFilter) ([]*models.Segment, error) {
	if filter.ChannelID != "" {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("started_at >= ?", filter.Since)
	}
	var segs []*models.Segment
	if err := q.Order("started_at DESC").Limit(filter.Limit).Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("listing segments missing artifacts: %w", err)
	}
	return segs, nil
}

// SetStageStatus updates one pipeline stage column for a segment.
func (r *segmentRepo) SetStageStatus(ctx context.Context, id uuid.UUID, startedAt time.Time, stage, status string) error {
	if !models.ValidStageStatus(status) {
		return models.ErrInvalidStatus
	}
	var column string
	switch stage {
	case StageASR:
		column = "asr_status"
	case StageVision:
		column = "vision_status"
	case StageNLP:
		column = "nlp_status"
	default:
		return fmt.Errorf("unknown pipeline stage %q", stage)
	}
	// UpdateColumn skips the model hooks, which expect a fully loaded row.
	res := r.db.WithContext(ctx).Model(&models.Segment{}).
		Where("id = ? AND started_at = ?", id, startedAt).
		UpdateColumn(column, status)
	if res.Error != nil {
		return fmt.Errorf("setting %s status: %w", stage, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

// DeleteOlderThan removes segment rows started before cutoff.
func (r *segmentRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&models.Segment{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old segments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure segmentRepo implements SegmentRepository at compile time.
var _ SegmentRepository = (*segmentRepo)(nil)
