package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mobasher/mobasher/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Channel{},
		&models.Recording{},
		&models.Segment{},
		&models.Transcript{},
		&models.SegmentEmbedding{},
		&models.VisualEvent{},
		&models.Entity{},
		&models.Alert{},
		&models.SystemMetric{},
	)
	require.NoError(t, err)

	return db
}

// createTestChannel inserts a channel row for foreign key style references.
func createTestChannel(t *testing.T, db *gorm.DB, id string) *models.Channel {
	t.Helper()
	channel := &models.Channel{
		ID:     id,
		Name:   "Channel " + id,
		URL:    "https://example.com/" + id + "/master.m3u8",
		Active: true,
	}
	require.NoError(t, db.Create(channel).Error)
	return channel
}

// createTestRecording inserts a running recording for a channel.
func createTestRecording(t *testing.T, db *gorm.DB, channelID string, startedAt time.Time) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		ChannelID: channelID,
		StartedAt: startedAt,
	}
	require.NoError(t, db.Create(rec).Error)
	return rec
}

// createTestSegment inserts a completed segment with both media paths.
func createTestSegment(t *testing.T, db *gorm.DB, channelID string, recordingID uuid.UUID, startedAt time.Time) *models.Segment {
	t.Helper()
	seg := &models.Segment{
		RecordingID: recordingID,
		ChannelID:   channelID,
		StartedAt:   startedAt,
		EndedAt:     startedAt.Add(60 * time.Second),
		AudioPath:   models.StringPtr("/data/audio/" + channelID + ".wav"),
		VideoPath:   models.StringPtr("/data/video/" + channelID + ".mp4"),
		Status:      models.SegmentStatusCompleted,
	}
	require.NoError(t, db.Create(seg).Error)
	return seg
}

// baseTime is an arbitrary fixed instant segments in tests hang off.
var baseTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
