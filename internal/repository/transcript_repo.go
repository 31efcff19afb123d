package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mobasher/mobasher/internal/models"
)

// transcriptRepo implements TranscriptRepository using GORM.
type transcriptRepo struct {
	db *gorm.DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *gorm.DB) *transcriptRepo {
	return &transcriptRepo{db: db}
}

// Upsert inserts or replaces the transcript for a segment. Re-running ASR
// on a segment overwrites the previous output instead of accumulating rows.
func (r *transcriptRepo) Upsert(ctx context.Context, tr *models.Transcript) error {
	if err := tr.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "segment_id"}, {Name: "segment_started_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"language", "text", "text_norm", "words", "confidence",
			"model_name", "model_version", "processing_time_ms", "engine_time_ms",
		}),
	}).Create(tr).Error; err != nil {
		return fmt.Errorf("upserting transcript: %w", err)
	}
	return nil
}

// Get retrieves the transcript for a segment.
func (r *transcriptRepo) Get(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time) (*models.Transcript, error) {
	var tr models.Transcript
	err := r.db.WithContext(ctx).
		Where("segment_id = ? AND segment_started_at = ?", segmentID, segmentStartedAt).
		First(&tr).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting transcript: %w", err)
	}
	return &tr, nil
}

// ListRecent joins segments to their transcripts, newest first.
func (r *transcriptRepo) ListRecent(ctx context.Context, filter TranscriptFilter) ([]*models.Transcript, error) {
	q := r.listQuery(ctx, filter)
	var trs []*models.Transcript
	if err := q.Find(&trs).Error; err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	return trs, nil
}

// Search returns transcripts whose text contains the query, newest first.
func (r *transcriptRepo) Search(ctx context.Context, query string, filter TranscriptFilter) ([]*models.Transcript, error) {
	q := r.listQuery(ctx, filter).
		Where("transcripts.text LIKE ?", "%"+query+"%")
	var trs []*models.Transcript
	if err := q.Find(&trs).Error; err != nil {
		return nil, fmt.Errorf("searching transcripts: %w", err)
	}
	return trs, nil
}

func (r *transcriptRepo) listQuery(ctx context.Context, filter TranscriptFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Transcript{})
	if filter.ChannelID != "" {
		q = q.Joins("JOIN segments ON segments.id = transcripts.segment_id AND segments.started_at = transcripts.segment_started_at").
			Where("segments.channel_id = ?", filter.ChannelID)
	}
	if filter.Since != nil {
		q = q.Where("transcripts.segment_started_at >= ?", *filter.Since)
	}
	if filter.Language != "" {
		q = q.Where("transcripts.language = ?", filter.Language)
	}
	return q.Order("transcripts.segment_started_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset)
}

// DeleteOlderThan removes transcripts for segments started before cutoff.
func (r *transcriptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("segment_started_at < ?", cutoff).
		Delete(&models.Transcript{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old transcripts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure transcriptRepo implements TranscriptRepository at compile time.
var _ TranscriptRepository = (*transcriptRepo)(nil)
