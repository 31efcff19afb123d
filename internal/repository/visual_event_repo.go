package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// visualEventRepo implements VisualEventRepository using GORM.
type visualEventRepo struct {
	db *gorm.DB
}

// NewVisualEventRepository creates a new VisualEventRepository.
func NewVisualEventRepository(db *gorm.DB) *visualEventRepo {
	return &visualEventRepo{db: db}
}

// CreateBatch inserts visual events in one batch.
func (r *visualEventRepo) CreateBatch(ctx context.Context, events []*models.VisualEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(events).Error; err != nil {
		return fmt.Errorf("creating visual events: %w", err)
	}
	return nil
}

// List retrieves events newest first.
func (r *visualEventRepo) List(ctx context.Context, filter VisualEventFilter) ([]*models.VisualEvent, error) {
	q := r.db.WithContext(ctx).Model(&models.VisualEvent{})
	if filter.ChannelID != "" {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.SegmentID != nil {
		q = q.Where("segment_id = ?", *filter.SegmentID)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Region != "" {
		q = q.Where(r.jsonText("region")+" = ?", filter.Region)
	}
	if filter.Query != "" {
		q = q.Where(r.jsonText("text")+" LIKE ?", "%"+filter.Query+"%")
	}
	if filter.Since != nil {
		q = q.Where("segment_started_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("segment_started_at <= ?", *filter.Until)
	}
	if filter.MinConfidence > 0 {
		q = q.Where("confidence >= ?", filter.MinConfidence)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var events []*models.VisualEvent
	err := q.Order("segment_started_at DESC, timestamp_offset ASC").
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing visual events: %w", err)
	}
	return events, nil
}

// jsonText renders a dialect-appropriate expression extracting a text field
// from the data column.
func (r *visualEventRepo) jsonText(field string) string {
	if r.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("data ->> '%s'", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

// CountForSegment counts events of one type for a segment.
func (r *visualEventRepo) CountForSegment(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time, eventType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.VisualEvent{}).
		Where("segment_id = ? AND segment_started_at = ? AND event_type = ?", segmentID, segmentStartedAt, eventType).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting visual events: %w", err)
	}
	return count, nil
}

// DeleteForSegment removes events of one type for a segment.
func (r *visualEventRepo) DeleteForSegment(ctx context.Context, segmentID uuid.UUID, segmentStartedAt time.Time, eventType string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("segment_id = ? AND segment_started_at = ? AND event_type = ?", segmentID, segmentStartedAt, eventType).
		Delete(&models.VisualEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting segment visual events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteOlderThan removes events created before cutoff.
func (r *visualEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.VisualEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old visual events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure visualEventRepo implements VisualEventRepository at compile time.
var _ VisualEventRepository = (*visualEventRepo)(nil)
