package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

func visionWorker(t *testing.T, cfg config.VisionConfig) (*VisionWorker, repository.VisualEventRepository, func(audio, video string) *models.Segment) {
	t.Helper()
	db := setupWorkerDB(t)
	events := repository.NewVisualEventRepository(db)
	w := NewVisionWorker(
		repository.NewSegmentRepository(db),
		events,
		&fakeDeduper{},
		cfg,
		stageMetrics("vision"),
		slog.New(slog.DiscardHandler),
		"",
	)
	return w, events, func(audio, video string) *models.Segment {
		return createWorkerSegment(t, db, audio, video)
	}
}

func rawOCREvent(region, text string, bbox models.IntArray, offset, conf float64) *models.VisualEvent {
	return &models.VisualEvent{
		TimestampOffset: offset,
		EventType:       models.EventTypeOCR,
		BBox:            bbox,
		Confidence:      models.Float64Ptr(conf),
		Data:            models.JSONMap{"text": text, "region": region, "font_size": 24.0},
	}
}

func TestVisionWorker_OCR_SpansOnly(t *testing.T) {
	w, events, mkSeg := visionWorker(t, config.VisionConfig{OCRWriteRaw: false})
	video := writeTempMedia(t, "kuwait1-20260824-115500.mp4")
	seg := mkSeg("", video)

	box := models.IntArray{0, 600, 1280, 60}
	analyser := &fakeAnalyser{name: "tesseract-ara", needs: NeedsVideo, out: &Output{
		Events: []*models.VisualEvent{
			rawOCREvent("ticker", "عاجل زلزال يضرب المنطقه", box, 0.0, 0.9),
			rawOCREvent("ticker", "عاجل زلزال يضرب المنطقة", box, 0.33, 0.95),
		},
	}}
	w.SetAnalyser(queue.TaskVisionOCR, analyser)

	h := w.handle(queue.TaskVisionOCR, func(ctx context.Context, p queue.SegmentPayload, s *models.Segment) error {
		return w.analyse(ctx, queue.TaskVisionOCR, s)
	})
	require.NoError(t, h(context.Background(), segmentTask(t, queue.TaskVisionOCR, seg)))

	stored, err := events.List(context.Background(), repository.VisualEventFilter{SegmentID: &seg.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	span := stored[0]
	assert.Equal(t, models.EventTypeOCRSpan, span.EventType)
	assert.Equal(t, "عاجل زلزال يضرب المنطقة", span.Data["text"])
	assert.Equal(t, "ticker", span.Data["region"])
	assert.InDelta(t, 24.0, span.Data["font_size"], 0.001)

	got, err := w.Segments.Get(context.Background(), seg.ID, seg.StartedAt)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, got.VisionStatus)
}

func TestVisionWorker_OCR_WriteRaw(t *testing.T) {
	w, events, mkSeg := visionWorker(t, config.VisionConfig{OCRWriteRaw: true})
	video := writeTempMedia(t, "kuwait1-20260824-115500.mp4")
	seg := mkSeg("", video)

	box := models.IntArray{0, 600, 1280, 60}
	w.SetAnalyser(queue.TaskVisionOCR, &fakeAnalyser{name: "tesseract-ara", out: &Output{
		Events: []*models.VisualEvent{rawOCREvent("ticker", "عاجل", box, 0.0, 0.9)},
	}})

	require.NoError(t, w.analyse(context.Background(), queue.TaskVisionOCR, seg))

	stored, err := events.List(context.Background(), repository.VisualEventFilter{SegmentID: &seg.ID})
	require.NoError(t, err)
	// One raw token plus its span.
	require.Len(t, stored, 2)
	types := []string{stored[0].EventType, stored[1].EventType}
	assert.ElementsMatch(t, []string{models.EventTypeOCR, models.EventTypeOCRSpan}, types)
}

func TestVisionWorker_OCR_Rerun(t *testing.T) {
	w, events, mkSeg := visionWorker(t, config.VisionConfig{OCRWriteRaw: true})
	video := writeTempMedia(t, "kuwait1-20260824-115500.mp4")
	seg := mkSeg("", video)

	box := models.IntArray{0, 600, 1280, 60}
	w.SetAnalyser(queue.TaskVisionOCR, &fakeAnalyser{name: "tesseract-ara", out: &Output{
		Events: []*models.VisualEvent{rawOCREvent("ticker", "عاجل", box, 0.0, 0.9)},
	}})

	// Re-running replaces instead of duplicating.
	require.NoError(t, w.analyse(context.Background(), queue.TaskVisionOCR, seg))
	require.NoError(t, w.analyse(context.Background(), queue.TaskVisionOCR, seg))

	stored, err := events.List(context.Background(), repository.VisualEventFilter{SegmentID: &seg.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestVisionWorker_Objects(t *testing.T) {
	w, events, mkSeg := visionWorker(t, config.VisionConfig{})
	video := writeTempMedia(t, "kuwait1-20260824-115500.mp4")
	seg := mkSeg("", video)

	w.SetAnalyser(queue.TaskVisionObjects, &fakeAnalyser{name: "yolo11n", out: &Output{
		Events: []*models.VisualEvent{
			{
				TimestampOffset: 12.5,
				BBox:            models.IntArray{100, 100, 200, 300},
				Confidence:      models.Float64Ptr(0.88),
				Data:            models.JSONMap{"class": "person"},
			},
		},
	}})

	require.NoError(t, w.analyse(context.Background(), queue.TaskVisionObjects, seg))

	stored, err := events.List(context.Background(), repository.VisualEventFilter{SegmentID: &seg.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	// The worker stamps the keys and the default event type.
	assert.Equal(t, models.EventTypeObject, stored[0].EventType)
	assert.Equal(t, seg.ID, stored[0].SegmentID)
	assert.Equal(t, "kuwait1", stored[0].ChannelID)
	assert.Equal(t, "person", stored[0].Data["class"])
}

func TestVisionWorker_NoVideo(t *testing.T) {
	w, _, mkSeg := visionWorker(t, config.VisionConfig{})
	seg := mkSeg("/data/audio/only.wav", "")

	w.SetAnalyser(queue.TaskVisionObjects, &fakeAnalyser{name: "yolo11n", out: &Output{}})
	err := w.analyse(context.Background(), queue.TaskVisionObjects, seg)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestVisionWorker_MergeWindowFromConfig(t *testing.T) {
	w, _, _ := visionWorker(t, config.VisionConfig{
		OCRTextSimThresh: 0.8,
		OCRIoUThresh:     0.5,
		OCRMergeWindow:   5 * time.Second,
	})
	assert.InDelta(t, 0.8, w.merger.textSim(), 0.001)
	assert.InDelta(t, 0.5, w.merger.iou(), 0.001)
	assert.InDelta(t, 5, w.merger.window(), 0.001)
}
