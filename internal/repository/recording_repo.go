package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create inserts a new recording row.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// Complete closes the recording with a final status and optional error.
func (r *recordingRepo) Complete(ctx context.Context, id uuid.UUID, startedAt time.Time, status string, errorMessage *string) error {
	updates := map[string]any{
		"ended_at": time.Now().UTC(),
		"status":   status,
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	// UpdateColumns skips the model hooks, which expect a fully loaded row.
	res := r.db.WithContext(ctx).Model(&models.Recording{}).
		Where("id = ? AND started_at = ?", id, startedAt).
		UpdateColumns(updates)
	if res.Error != nil {
		return fmt.Errorf("completing recording: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRecordingNotFound
	}
	return nil
}

// Get retrieves a recording by composite key.
func (r *recordingRepo) Get(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Recording, error) {
	var rec models.Recording
	err := r.db.WithContext(ctx).
		Where("id = ? AND started_at = ?", id, startedAt).
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording: %w", err)
	}
	return &rec, nil
}

// List retrieves recordings newest first.
func (r *recordingRepo) List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error) {
	q := r.db.WithContext(ctx).Model(&models.Recording{})
	if filter.ChannelID != "" {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Since != nil {
		q = q.Where("started_at >= ?", *filter.Since)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var recs []*models.Recording
	if err := q.Order("started_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recs, nil
}

// MarkStaleRunning fails running recordings that started before cutoff.
// Covers supervisors that died without closing their session.
func (r *recordingRepo) MarkStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Recording{}).
		Where("status = ? AND started_at < ?", models.RecordingStatusRunning, cutoff).
		UpdateColumns(map[string]any{
			"status":        models.RecordingStatusFailed,
			"ended_at":      time.Now().UTC(),
			"error_message": "marked stale by janitor",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("marking stale recordings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure recordingRepo implements RecordingRepository at compile time.
var _ RecordingRepository = (*recordingRepo)(nil)
