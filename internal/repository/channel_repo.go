package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mobasher/mobasher/internal/models"
)

// channelRepo implements ChannelRepository using GORM.
type channelRepo struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) *channelRepo {
	return &channelRepo{db: db}
}

// Upsert creates the channel or updates its mutable fields by id.
func (r *channelRepo) Upsert(ctx context.Context, channel *models.Channel) error {
	if err := channel.Validate(); err != nil {
		return err
	}
	// GORM omits zero-valued fields with a column default from the INSERT
	// and backfills the struct with the default, so capture Active first.
	active := channel.Active
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "url", "headers", "active", "updated_at",
		}),
	}).Create(channel).Error; err != nil {
		return fmt.Errorf("upserting channel: %w", err)
	}
	if !active {
		channel.Active = false
		if err := r.db.WithContext(ctx).Model(&models.Channel{}).
			Where("id = ?", channel.ID).
			UpdateColumn("active", false).Error; err != nil {
			return fmt.Errorf("upserting channel active flag: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a channel by id.
func (r *channelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by id: %w", err)
	}
	return &channel, nil
}

// List retrieves channels ordered by creation time.
func (r *channelRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Channel, error) {
	q := r.db.WithContext(ctx).Model(&models.Channel{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var channels []*models.Channel
	if err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

// SetActive flips the active flag for a channel.
func (r *channelRepo) SetActive(ctx context.Context, id string, active bool) error {
	// UpdateColumns skips the model hooks, which expect a fully loaded row.
	res := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("setting channel active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrChannelNotFound
	}
	return nil
}

// Delete deletes a channel by id.
func (r *channelRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Channel{}).Error; err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

// Stats returns per-channel segment and transcript aggregates.
func (r *channelRepo) Stats(ctx context.Context, id string) (*models.ChannelStats, error) {
	channel, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, models.ErrChannelNotFound
	}

	stats := &models.ChannelStats{ID: channel.ID, Name: channel.Name}

	if err := r.db.WithContext(ctx).Model(&models.Segment{}).
		Where("channel_id = ?", id).
		Count(&stats.TotalSegments).Error; err != nil {
		return nil, fmt.Errorf("counting segments: %w", err)
	}

	var agg struct {
		Transcribed   int64
		AvgConfidence *float64
	}
	err = r.db.WithContext(ctx).Model(&models.Transcript{}).
		Select("COUNT(*) AS transcribed, AVG(confidence) AS avg_confidence").
		Joins("JOIN segments ON segments.id = transcripts.segment_id AND segments.started_at = transcripts.segment_started_at").
		Where("segments.channel_id = ?", id).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating transcripts: %w", err)
	}
	stats.TranscribedSegments = agg.Transcribed
	stats.AvgConfidence = agg.AvgConfidence

	var last models.Segment
	err = r.db.WithContext(ctx).
		Where("channel_id = ?", id).
		Order("started_at DESC").
		First(&last).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		// No segments yet.
	case err != nil:
		return nil, fmt.Errorf("getting last segment: %w", err)
	default:
		t := last.StartedAt
		stats.LastSegmentTime = &t
	}

	return stats, nil
}

// Ensure channelRepo implements ChannelRepository at compile time.
var _ ChannelRepository = (*channelRepo)(nil)
