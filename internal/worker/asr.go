package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

// Normalizer folds transcript text before storage and dictionary matching.
// Identity when nil.
type Normalizer func(string) string

// ASRWorker consumes the asr queue: transcription plus the queue latency
// probe.
type ASRWorker struct {
	Base
	transcripts repository.TranscriptRepository
	embeddings  repository.EmbeddingRepository
	analyser    Analyser
	normalize   Normalizer
}

// NewASRWorker wires the transcription worker.
func NewASRWorker(
	segments repository.SegmentRepository,
	transcripts repository.TranscriptRepository,
	embeddings repository.EmbeddingRepository,
	dedupe Deduper,
	analyser Analyser,
	normalize Normalizer,
	metrics *observability.StageMetrics,
	logger *slog.Logger,
	dataRoot string,
) *ASRWorker {
	return &ASRWorker{
		Base: Base{
			Stage:    repository.StageASR,
			Segments: segments,
			Dedupe:   dedupe,
			Metrics:  metrics,
			Logger:   logger.With(slog.String("component", "asr-worker")),
			DataRoot: dataRoot,
		},
		transcripts: transcripts,
		embeddings:  embeddings,
		analyser:    analyser,
		normalize:   normalize,
	}
}

// Register attaches the worker's handlers to a stage server.
func (w *ASRWorker) Register(srv *queue.Server) {
	srv.Handle(queue.TaskASRTranscribe, w.handle(queue.TaskASRTranscribe, w.transcribe))
	srv.Handle(queue.TaskASRPing, w.ping)
}

func (w *ASRWorker) transcribe(ctx context.Context, payload queue.SegmentPayload, seg *models.Segment) error {
	if seg.AudioPath == nil || *seg.AudioPath == "" {
		return fmt.Errorf("%w: segment %s has no audio", asynq.SkipRetry, seg.ID)
	}
	path, err := ResolveMedia(*seg.AudioPath, w.DataRoot)
	if err != nil {
		return err
	}

	started := time.Now()
	out, err := w.analyser.Run(ctx, Input{Segment: seg, MediaPath: path})
	if err != nil {
		return fmt.Errorf("transcribing %s: %w", seg.ID, err)
	}
	if out.Transcript == nil {
		return fmt.Errorf("analyser %s returned no transcript", w.analyser.Name())
	}

	tr := out.Transcript
	tr.SegmentID = seg.ID
	tr.SegmentStartedAt = seg.StartedAt
	if tr.ModelName == "" {
		tr.ModelName = w.analyser.Name()
	}
	if tr.TextNorm == nil && w.normalize != nil {
		tr.TextNorm = models.StringPtr(w.normalize(tr.Text))
	}
	tr.ProcessingTimeMs = models.IntPtr(int(time.Since(started).Milliseconds()))
	if out.EngineTimeMs > 0 {
		tr.EngineTimeMs = models.IntPtr(out.EngineTimeMs)
	}

	if err := w.transcripts.Upsert(ctx, tr); err != nil {
		return fmt.Errorf("storing transcript: %w", err)
	}

	if out.Embedding != nil {
		emb := out.Embedding
		emb.SegmentID = seg.ID
		emb.SegmentStartedAt = seg.StartedAt
		if emb.ModelName == "" {
			emb.ModelName = w.analyser.Name()
		}
		if err := w.embeddings.Upsert(ctx, emb); err != nil {
			return fmt.Errorf("storing embedding: %w", err)
		}
	}

	w.Logger.Info("segment transcribed",
		slog.String("segment_id", seg.ID.String()),
		slog.String("channel_id", seg.ChannelID),
		slog.Int("chars", len(tr.Text)))
	return nil
}

// ping answers the queue round-trip probe by logging the observed latency.
func (w *ASRWorker) ping(_ context.Context, task *asynq.Task) error {
	var p struct {
		SentAt time.Time `json:"sent_at"`
	}
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("%w: unmarshaling ping: %w", asynq.SkipRetry, err)
	}
	w.Logger.Info("ping received", slog.Duration("latency", time.Since(p.SentAt)))
	return nil
}
