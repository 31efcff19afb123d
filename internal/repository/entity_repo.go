package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// entityRepo implements EntityRepository using GORM.
type entityRepo struct {
	db *gorm.DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *gorm.DB) *entityRepo {
	return &entityRepo{db: db}
}

// ReplaceForSegment deletes the segment's entities and inserts the new set
// in one transaction, so a re-run never leaves duplicates behind.
func (r *entityRepo) ReplaceForSegment(ctx context.Context, segmentID uuid.UUID, entities []*models.Entity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("segment_id = ?", segmentID).Delete(&models.Entity{}).Error; err != nil {
			return fmt.Errorf("clearing segment entities: %w", err)
		}
		if len(entities) == 0 {
			return nil
		}
		if err := tx.Create(entities).Error; err != nil {
			return fmt.Errorf("creating entities: %w", err)
		}
		return nil
	})
}

// ListBySegment retrieves a segment's entities.
func (r *entityRepo) ListBySegment(ctx context.Context, segmentID uuid.UUID) ([]*models.Entity, error) {
	var entities []*models.Entity
	err := r.db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("char_start ASC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("listing segment entities: %w", err)
	}
	return entities, nil
}

// ListByLabel retrieves recent entities for one label, newest first.
func (r *entityRepo) ListByLabel(ctx context.Context, label string, since *time.Time, limit, offset int) ([]*models.Entity, error) {
	q := r.db.WithContext(ctx).Where("label = ?", label)
	if since != nil {
		q = q.Where("started_at >= ?", *since)
	}
	var entities []*models.Entity
	if err := q.Order("started_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("listing entities by label: %w", err)
	}
	return entities, nil
}

// DeleteOlderThan removes entities created before cutoff.
func (r *entityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Entity{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old entities: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure entityRepo implements EntityRepository at compile time.
var _ EntityRepository = (*entityRepo)(nil)
