package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

type fakeAnalyser struct {
	name    string
	needs   string
	out     *Output
	err     error
	gotPath string
}

func (f *fakeAnalyser) Name() string  { return f.name }
func (f *fakeAnalyser) Needs() string { return f.needs }

func (f *fakeAnalyser) Run(_ context.Context, in Input) (*Output, error) {
	f.gotPath = in.MediaPath
	return f.out, f.err
}

type fakeDeduper struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeDeduper) ReleaseDedupe(_ context.Context, taskType string, _ queue.SegmentPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, taskType)
	return nil
}

func setupWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Channel{}, &models.Recording{}, &models.Segment{},
		&models.Transcript{}, &models.SegmentEmbedding{},
		&models.VisualEvent{}, &models.Entity{}, &models.Alert{},
	))
	require.NoError(t, db.Create(&models.Channel{ID: "kuwait1", Name: "Kuwait One", URL: "https://example.com/live.m3u8"}).Error)
	return db
}

func createWorkerSegment(t *testing.T, db *gorm.DB, audioPath, videoPath string) *models.Segment {
	t.Helper()
	start := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second)
	rec := &models.Recording{ChannelID: "kuwait1", StartedAt: start, Status: models.RecordingStatusRunning}
	require.NoError(t, db.Create(rec).Error)
	seg := &models.Segment{
		RecordingID: rec.ID,
		ChannelID:   "kuwait1",
		StartedAt:   start,
		EndedAt:     start.Add(time.Minute),
		Status:      models.SegmentStatusCompleted,
	}
	if audioPath != "" {
		seg.AudioPath = models.StringPtr(audioPath)
	}
	if videoPath != "" {
		seg.VideoPath = models.StringPtr(videoPath)
	}
	require.NoError(t, db.Create(seg).Error)
	return seg
}

func writeTempMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	return path
}

func stageMetrics(stage string) *observability.StageMetrics {
	return observability.NewStageMetrics(prometheus.NewRegistry(), stage)
}

func segmentTask(t *testing.T, taskType string, seg *models.Segment) *asynq.Task {
	t.Helper()
	task, err := queue.NewSegmentTask(taskType, queue.SegmentPayload{
		SegmentID: seg.ID,
		StartedAt: seg.StartedAt,
		ChannelID: seg.ChannelID,
	})
	require.NoError(t, err)
	return task
}

func TestASRWorker_Transcribe(t *testing.T) {
	db := setupWorkerDB(t)
	audio := writeTempMedia(t, "kuwait1-20260824-115500.wav")
	seg := createWorkerSegment(t, db, audio, "")

	analyser := &fakeAnalyser{
		name:  "whisper-large-v3",
		needs: NeedsAudio,
		out: &Output{
			Transcript: &models.Transcript{
				Language:   "ar",
				Text:       "خبر عاجل",
				Words:      models.WordList{{Word: "خبر", Start: 0, End: 0.5}, {Word: "عاجل", Start: 0.5, End: 1.1}},
				Confidence: models.Float64Ptr(0.92),
			},
			EngineTimeMs: 850,
		},
	}
	dedupe := &fakeDeduper{}
	w := NewASRWorker(
		repository.NewSegmentRepository(db),
		repository.NewTranscriptRepository(db),
		repository.NewEmbeddingRepository(db),
		dedupe, analyser,
		func(s string) string { return "normalized:" + s },
		stageMetrics("asr"), slog.New(slog.DiscardHandler), "",
	)

	h := w.handle(queue.TaskASRTranscribe, w.transcribe)
	require.NoError(t, h(context.Background(), segmentTask(t, queue.TaskASRTranscribe, seg)))
	assert.Equal(t, audio, analyser.gotPath)

	tr, err := w.transcripts.Get(context.Background(), seg.ID, seg.StartedAt)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "خبر عاجل", tr.Text)
	assert.Equal(t, "whisper-large-v3", tr.ModelName)
	require.NotNil(t, tr.TextNorm)
	assert.Equal(t, "normalized:خبر عاجل", *tr.TextNorm)
	require.NotNil(t, tr.EngineTimeMs)
	assert.Equal(t, 850, *tr.EngineTimeMs)
	require.NotNil(t, tr.ProcessingTimeMs)

	got, err := w.Segments.Get(context.Background(), seg.ID, seg.StartedAt)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, got.ASRStatus)
	assert.Empty(t, dedupe.released)
}

func TestASRWorker_AnalyserFailure(t *testing.T) {
	db := setupWorkerDB(t)
	audio := writeTempMedia(t, "kuwait1-20260824-115500.wav")
	seg := createWorkerSegment(t, db, audio, "")

	analyser := &fakeAnalyser{name: "whisper-large-v3", needs: NeedsAudio, err: errors.New("model crashed")}
	dedupe := &fakeDeduper{}
	w := NewASRWorker(
		repository.NewSegmentRepository(db),
		repository.NewTranscriptRepository(db),
		repository.NewEmbeddingRepository(db),
		dedupe, analyser, nil,
		stageMetrics("asr"), slog.New(slog.DiscardHandler), "",
	)

	h := w.handle(queue.TaskASRTranscribe, w.transcribe)
	err := h(context.Background(), segmentTask(t, queue.TaskASRTranscribe, seg))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	got, getErr := w.Segments.Get(context.Background(), seg.ID, seg.StartedAt)
	require.NoError(t, getErr)
	assert.Equal(t, models.StageStatusFailed, got.ASRStatus)
	// The dedupe key is freed so the scheduler can requeue before the TTL.
	assert.Equal(t, []string{queue.TaskASRTranscribe}, dedupe.released)
}

func TestASRWorker_NoAudio(t *testing.T) {
	db := setupWorkerDB(t)
	seg := createWorkerSegment(t, db, "", "/data/video/only.mp4")

	w := NewASRWorker(
		repository.NewSegmentRepository(db),
		repository.NewTranscriptRepository(db),
		repository.NewEmbeddingRepository(db),
		&fakeDeduper{}, &fakeAnalyser{name: "whisper-large-v3"}, nil,
		stageMetrics("asr"), slog.New(slog.DiscardHandler), "",
	)

	h := w.handle(queue.TaskASRTranscribe, w.transcribe)
	err := h(context.Background(), segmentTask(t, queue.TaskASRTranscribe, seg))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestASRWorker_SegmentMissing(t *testing.T) {
	db := setupWorkerDB(t)
	w := NewASRWorker(
		repository.NewSegmentRepository(db),
		repository.NewTranscriptRepository(db),
		repository.NewEmbeddingRepository(db),
		&fakeDeduper{}, &fakeAnalyser{name: "whisper-large-v3"}, nil,
		stageMetrics("asr"), slog.New(slog.DiscardHandler), "",
	)

	ghost := &models.Segment{
		ID:        models.DeterministicSegmentID("kuwait1", time.Now().UTC()),
		ChannelID: "kuwait1",
		StartedAt: time.Now().UTC(),
	}
	h := w.handle(queue.TaskASRTranscribe, w.transcribe)
	err := h(context.Background(), segmentTask(t, queue.TaskASRTranscribe, ghost))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestASRWorker_Ping(t *testing.T) {
	w := NewASRWorker(nil, nil, nil, nil, nil, nil,
		stageMetrics("asr"), slog.New(slog.DiscardHandler), "")

	task := asynq.NewTask(queue.TaskASRPing, []byte(`{"sent_at":"2026-08-24T12:00:00Z"}`))
	assert.NoError(t, w.ping(context.Background(), task))

	bad := asynq.NewTask(queue.TaskASRPing, []byte(`{`))
	assert.ErrorIs(t, w.ping(context.Background(), bad), asynq.SkipRetry)
}

func TestResolveMedia(t *testing.T) {
	dataRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "audio", "2026-08-24"), 0o755))
	local := filepath.Join(dataRoot, "audio", "2026-08-24", "kuwait1-20260824-115500.wav")
	require.NoError(t, os.WriteFile(local, []byte("pcm"), 0o644))

	// Literal path.
	got, err := ResolveMedia(local, dataRoot)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	// Recorded on another host under a different root: remapped from the
	// media kind directory.
	got, err = ResolveMedia("/mnt/capture/audio/2026-08-24/kuwait1-20260824-115500.wav", dataRoot)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	_, err = ResolveMedia("/mnt/capture/audio/2026-08-24/missing.wav", dataRoot)
	assert.Error(t, err)

	_, err = ResolveMedia("", dataRoot)
	assert.Error(t, err)
}
