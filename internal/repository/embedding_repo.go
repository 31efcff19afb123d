package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mobasher/mobasher/internal/models"
)

// embeddingRepo implements EmbeddingRepository using GORM with pgvector.
type embeddingRepo struct {
	db *gorm.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(db *gorm.DB) *embeddingRepo {
	return &embeddingRepo{db: db}
}

// Upsert inserts or replaces the embedding for a segment.
func (r *embeddingRepo) Upsert(ctx context.Context, emb *models.SegmentEmbedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "segment_id"}, {Name: "segment_started_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_name", "vector"}),
	}).Create(emb).Error; err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

// Get retrieves the embedding for a segment.
func (r *embeddingRepo) Get(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time) (*models.SegmentEmbedding, error) {
	var emb models.SegmentEmbedding
	err := r.db.WithContext(ctx).
		Where("segment_id = ? AND segment_started_at = ?", segmentID, segmentStartedAt).
		First(&emb).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting embedding: %w", err)
	}
	return &emb, nil
}

// SemanticSearch returns the topK segments nearest to the query vector by
// L2 distance, joining embeddings to their segment rows. The vector operator
// only exists on PostgreSQL with the pgvector extension.
func (r *embeddingRepo) SemanticSearch(ctx context.Context, query pgvector.Vector, topK int, modelName, channelID string) ([]SemanticMatch, error) {
	if r.db.Dialector.Name() != "postgres" {
		return nil, fmt.Errorf("semantic search requires postgres, have %s", r.db.Dialector.Name())
	}

	q := r.db.WithContext(ctx).Model(&models.Segment{}).
		Select("segments.*, segment_embeddings.vector <-> ? AS distance", query).
		Joins("JOIN segment_embeddings ON segment_embeddings.segment_id = segments.id AND segment_embeddings.segment_started_at = segments.started_at")
	if modelName != "" {
		q = q.Where("segment_embeddings.model_name = ?", modelName)
	}
	if channelID != "" {
		q = q.Where("segments.channel_id = ?", channelID)
	}

	var rows []struct {
		models.Segment
		Distance float64
	}
	if err := q.Order("distance ASC").Limit(topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	matches := make([]SemanticMatch, len(rows))
	for i, row := range rows {
		matches[i] = SemanticMatch{Segment: row.Segment, Distance: row.Distance}
	}
	return matches, nil
}

// DeleteOlderThan removes embeddings for segments started before cutoff.
func (r *embeddingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("segment_started_at < ?", cutoff).
		Delete(&models.SegmentEmbedding{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old embeddings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure embeddingRepo implements EmbeddingRepository at compile time.
var _ EmbeddingRepository = (*embeddingRepo)(nil)
