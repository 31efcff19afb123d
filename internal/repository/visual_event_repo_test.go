package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobasher/mobasher/internal/models"
)

func TestVisualEventRepo_CreateBatchAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVisualEventRepository(db)
	ctx := context.Background()

	createTestChannel(t, db, "kuwait1")
	rec := createTestRecording(t, db, "kuwait1", baseTime)
	seg := createTestSegment(t, db, "kuwait1", rec.ID, baseTime)

	events := []*models.VisualEvent{
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			TimestampOffset:  2.0,
			EventType:        models.EventTypeOCRSpan,
			BBox:             models.IntArray{10, 600, 500, 40},
			Confidence:       models.Float64Ptr(0.91),
			Data:             models.JSONMap{"text": "عاجل", "region": "ticker"},
		},
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			TimestampOffset:  0.5,
			EventType:        models.EventTypeObject,
			Data:             models.JSONMap{"label": "person"},
		},
	}
	require.NoError(t, repo.CreateBatch(ctx, events))
	for _, e := range events {
		assert.False(t, e.ID.IsZero())
	}

	// Empty batch is a no-op.
	require.NoError(t, repo.CreateBatch(ctx, nil))

	all, err := repo.List(ctx, VisualEventFilter{ChannelID: "kuwait1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	spans, err := repo.List(ctx, VisualEventFilter{EventType: models.EventTypeOCRSpan, Limit: 10})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "عاجل", spans[0].Data["text"])
	assert.Equal(t, models.IntArray{10, 600, 500, 40}, spans[0].BBox)

	segID := seg.ID
	bySegment, err := repo.List(ctx, VisualEventFilter{SegmentID: &segID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bySegment, 2)
	// Within a segment, events order by offset.
	assert.Equal(t, models.EventTypeObject, bySegment[0].EventType)

	// An unset limit means no limit, not zero rows.
	unlimited, err := repo.List(ctx, VisualEventFilter{ChannelID: "kuwait1"})
	require.NoError(t, err)
	assert.Len(t, unlimited, 2)
}

func TestVisualEventRepo_List_DataFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVisualEventRepository(db)
	ctx := context.Background()

	createTestChannel(t, db, "kuwait1")
	rec := createTestRecording(t, db, "kuwait1", baseTime)
	seg := createTestSegment(t, db, "kuwait1", rec.ID, baseTime)

	require.NoError(t, repo.CreateBatch(ctx, []*models.VisualEvent{
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			EventType:        models.EventTypeOCRSpan,
			Confidence:       models.Float64Ptr(0.95),
			Data:             models.JSONMap{"text": "عاجل زلزال", "region": "ticker"},
		},
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			EventType:        models.EventTypeOCRSpan,
			Confidence:       models.Float64Ptr(0.40),
			Data:             models.JSONMap{"text": "حالة الطقس", "region": "headline"},
		},
	}))

	byRegion, err := repo.List(ctx, VisualEventFilter{Region: "ticker", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byRegion, 1)
	assert.Equal(t, "عاجل زلزال", byRegion[0].Data["text"])

	byQuery, err := repo.List(ctx, VisualEventFilter{Query: "الطقس", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, byQuery, 1)

	confident, err := repo.List(ctx, VisualEventFilter{MinConfidence: 0.5, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, confident, 1)

	until := baseTime.Add(-time.Hour)
	none, err := repo.List(ctx, VisualEventFilter{Until: &until, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestVisualEventRepo_CountAndDeleteForSegment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVisualEventRepository(db)
	ctx := context.Background()

	createTestChannel(t, db, "kuwait1")
	rec := createTestRecording(t, db, "kuwait1", baseTime)
	seg := createTestSegment(t, db, "kuwait1", rec.ID, baseTime)

	require.NoError(t, repo.CreateBatch(ctx, []*models.VisualEvent{
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			EventType:        models.EventTypeOCR,
			Data:             models.JSONMap{"text": "أ"},
		},
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			EventType:        models.EventTypeOCR,
			Data:             models.JSONMap{"text": "ب"},
		},
		{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        "kuwait1",
			EventType:        models.EventTypeFace,
			Data:             models.JSONMap{},
		},
	}))

	count, err := repo.CountForSegment(ctx, seg.ID, seg.StartedAt, models.EventTypeOCR)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Re-running a stage clears only its own event type.
	n, err := repo.DeleteForSegment(ctx, seg.ID, seg.StartedAt, models.EventTypeOCR)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	faces, err := repo.CountForSegment(ctx, seg.ID, seg.StartedAt, models.EventTypeFace)
	require.NoError(t, err)
	assert.Equal(t, int64(1), faces)
}

func TestVisualEventRepo_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVisualEventRepository(db)
	ctx := context.Background()

	createTestChannel(t, db, "kuwait1")
	rec := createTestRecording(t, db, "kuwait1", baseTime)
	seg := createTestSegment(t, db, "kuwait1", rec.ID, baseTime)

	require.NoError(t, repo.CreateBatch(ctx, []*models.VisualEvent{{
		SegmentID:        seg.ID,
		SegmentStartedAt: seg.StartedAt,
		ChannelID:        "kuwait1",
		EventType:        models.EventTypeScreenshot,
		Data:             models.JSONMap{"path": "/screens/x.jpg"},
	}}))

	n, err := repo.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
