package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// alertRepo implements AlertRepository using GORM.
type alertRepo struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) *alertRepo {
	return &alertRepo{db: db}
}

// CreateBatch inserts alerts in one batch.
func (r *alertRepo) CreateBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(alerts).Error; err != nil {
		return fmt.Errorf("creating alerts: %w", err)
	}
	return nil
}

// List retrieves alerts newest first, optionally by channel or category.
func (r *alertRepo) List(ctx context.Context, channelID, category string, since *time.Time, limit, offset int) ([]*models.Alert, error) {
	q := r.db.WithContext(ctx).Model(&models.Alert{})
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var alerts []*models.Alert
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// DeleteOlderThan removes alerts created before cutoff.
func (r *alertRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Alert{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure alertRepo implements AlertRepository at compile time.
var _ AlertRepository = (*alertRepo)(nil)
