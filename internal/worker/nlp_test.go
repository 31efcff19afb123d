package worker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/nlp"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

func nlpWorker(t *testing.T, db *gorm.DB, entityIdx, alertIdx *nlp.PhraseIndex) *NLPWorker {
	t.Helper()
	return NewNLPWorker(
		repository.NewSegmentRepository(db),
		repository.NewTranscriptRepository(db),
		repository.NewEntityRepository(db),
		repository.NewAlertRepository(db),
		&fakeDeduper{},
		entityIdx, alertIdx,
		stageMetrics("nlp"),
		slog.New(slog.DiscardHandler),
	)
}

func createTranscript(t *testing.T, db *gorm.DB, seg *models.Segment, text string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Transcript{
		SegmentID:        seg.ID,
		SegmentStartedAt: seg.StartedAt,
		Language:         "ar",
		Text:             text,
		ModelName:        "whisper-large-v3",
	}).Error)
}

func TestNLPWorker_Entities_Dictionary(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")
	createTranscript(t, db, seg, "عاجل زلزال يضرب الكويت صباح اليوم")

	idx := nlp.NewPhraseIndex([]nlp.Dictionary{{Name: "GPE", Terms: []string{"الكويت"}}})
	w := nlpWorker(t, db, idx, nil)

	require.NoError(t, w.extractEntities(context.Background(), queue.SegmentPayload{}, seg))

	rows, err := w.entities.ListBySegment(context.Background(), seg.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "الكويت", rows[0].Text)
	assert.Equal(t, "GPE", rows[0].Label)
	assert.Equal(t, entityModelDict, rows[0].Model)
	require.NotNil(t, rows[0].CharStart)
	assert.Equal(t, 16, *rows[0].CharStart)
	assert.Equal(t, 22, *rows[0].CharEnd)
}

func TestNLPWorker_Entities_Fallback(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")
	createTranscript(t, db, seg, "قال وزير الخارجية ان وزير الدفاع وصل")

	w := nlpWorker(t, db, nil, nil)
	require.NoError(t, w.extractEntities(context.Background(), queue.SegmentPayload{}, seg))

	rows, err := w.entities.ListBySegment(context.Background(), seg.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, fallbackEntityLabel, row.Label)
		assert.Equal(t, entityModelHeuristic, row.Model)
	}
}

func TestNLPWorker_Entities_Rerun(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")
	createTranscript(t, db, seg, "عاجل من الكويت")

	idx := nlp.NewPhraseIndex([]nlp.Dictionary{{Name: "GPE", Terms: []string{"الكويت"}}})
	w := nlpWorker(t, db, idx, nil)

	require.NoError(t, w.extractEntities(context.Background(), queue.SegmentPayload{}, seg))
	require.NoError(t, w.extractEntities(context.Background(), queue.SegmentPayload{}, seg))

	rows, err := w.entities.ListBySegment(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNLPWorker_Entities_NoTranscript(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")

	w := nlpWorker(t, db, nil, nil)
	err := w.extractEntities(context.Background(), queue.SegmentPayload{}, seg)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNLPWorker_Alerts(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")
	createTranscript(t, db, seg, "خبر عاجل زلزال يضرب المنطقة")

	idx := nlp.NewPhraseIndex([]nlp.Dictionary{
		{Name: "breaking", Terms: []string{"خبر عاجل"}},
		{Name: "disaster", Terms: []string{"زلزال"}},
	})
	w := nlpWorker(t, db, nil, idx)

	require.NoError(t, w.matchAlerts(context.Background(), queue.SegmentPayload{}, seg))

	rows, err := w.alerts.List(context.Background(), "kuwait1", "", nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byCategory := map[string]*models.Alert{}
	for _, a := range rows {
		byCategory[a.Category] = a
	}
	require.Contains(t, byCategory, "breaking")
	assert.Equal(t, "خبر عاجل", byCategory["breaking"].MatchedPhrase)
	assert.Equal(t, seg.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"), byCategory["breaking"].Payload["segment_started_at"])
}

func TestNLPWorker_Alerts_NoIndex(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "/data/audio/a.wav", "")
	createTranscript(t, db, seg, "خبر عاجل")

	w := nlpWorker(t, db, nil, nil)
	require.NoError(t, w.matchAlerts(context.Background(), queue.SegmentPayload{}, seg))

	rows, err := w.alerts.List(context.Background(), "kuwait1", "", nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
