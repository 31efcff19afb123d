package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// systemMetricRepo implements SystemMetricRepository using GORM.
type systemMetricRepo struct {
	db *gorm.DB
}

// NewSystemMetricRepository creates a new SystemMetricRepository.
func NewSystemMetricRepository(db *gorm.DB) *systemMetricRepo {
	return &systemMetricRepo{db: db}
}

// Record inserts one sample.
func (r *systemMetricRepo) Record(ctx context.Context, metric *models.SystemMetric) error {
	if err := r.db.WithContext(ctx).Create(metric).Error; err != nil {
		return fmt.Errorf("recording system metric: %w", err)
	}
	return nil
}

// ListRecent retrieves samples for one metric name, newest first.
func (r *systemMetricRepo) ListRecent(ctx context.Context, name string, since *time.Time, limit int) ([]*models.SystemMetric, error) {
	q := r.db.WithContext(ctx).Where("metric_name = ?", name)
	if since != nil {
		q = q.Where("timestamp >= ?", *since)
	}
	var metrics []*models.SystemMetric
	if err := q.Order("timestamp DESC").Limit(limit).Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("listing system metrics: %w", err)
	}
	return metrics, nil
}

// DeleteOlderThan removes samples taken before cutoff.
func (r *systemMetricRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.SystemMetric{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old system metrics: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure systemMetricRepo implements SystemMetricRepository at compile time.
var _ SystemMetricRepository = (*systemMetricRepo)(nil)
