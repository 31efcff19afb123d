// Package worker implements the stage consumers: ASR, vision and NLP
// handlers share one task lifecycle (attempt counter, per-stage status
// column, duration observation, dedupe release on failure) and differ only
// in the analyser they call and the artifacts they persist.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

// Deduper releases a segment's dedupe key so a failed task can be
// rescheduled before the TTL runs out. queue.Client satisfies it.
type Deduper interface {
	ReleaseDedupe(ctx context.Context, taskType string, payload queue.SegmentPayload) error
}

// Base carries the shared dependencies of every stage worker.
type Base struct {
	Stage    string
	Segments repository.SegmentRepository
	Dedupe   Deduper
	Metrics  *observability.StageMetrics
	Logger   *slog.Logger
	DataRoot string
}

// handle wraps a stage-specific body with the common task lifecycle. The
// body gets the loaded segment and returns an error to trigger a retry;
// a missing segment skips retries since requeueing cannot create the row.
func (b *Base) handle(taskType string, body func(ctx context.Context, payload queue.SegmentPayload, seg *models.Segment) error) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := queue.ParseSegmentPayload(task)
		if err != nil {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}

		b.Metrics.Attempts.WithLabelValues(taskType, payload.ChannelID).Inc()
		started := time.Now()

		seg, err := b.Segments.Get(ctx, payload.SegmentID, payload.StartedAt)
		if err != nil {
			return b.fail(ctx, taskType, payload, fmt.Errorf("loading segment: %w", err))
		}
		if seg == nil {
			b.Metrics.Outcomes.WithLabelValues(taskType, "missing", payload.ChannelID).Inc()
			return fmt.Errorf("%w: segment %s not found", asynq.SkipRetry, payload.SegmentID)
		}

		if err := b.Segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, b.Stage, models.StageStatusProcessing); err != nil {
			return b.fail(ctx, taskType, payload, fmt.Errorf("marking processing: %w", err))
		}

		if err := body(ctx, payload, seg); err != nil {
			if stErr := b.Segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, b.Stage, models.StageStatusFailed); stErr != nil {
				b.Logger.Warn("marking failed", slog.Any("error", stErr))
			}
			return b.fail(ctx, taskType, payload, err)
		}

		if err := b.Segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, b.Stage, models.StageStatusCompleted); err != nil {
			b.Logger.Warn("marking completed", slog.Any("error", err))
		}
		b.Metrics.Outcomes.WithLabelValues(taskType, "success", payload.ChannelID).Inc()
		b.Metrics.Duration.WithLabelValues(taskType, payload.ChannelID).Observe(time.Since(started).Seconds())
		return nil
	}
}

// fail records the outcome, frees the dedupe key and hands the error back
// to the broker for its retry policy.
func (b *Base) fail(ctx context.Context, taskType string, payload queue.SegmentPayload, err error) error {
	b.Metrics.Outcomes.WithLabelValues(taskType, "failure", payload.ChannelID).Inc()
	if b.Dedupe != nil {
		if relErr := b.Dedupe.ReleaseDedupe(ctx, taskType, payload); relErr != nil {
			b.Logger.Warn("releasing dedupe key", slog.Any("error", relErr))
		}
	}
	b.Logger.Error("task failed",
		slog.String("task", taskType),
		slog.String("segment_id", payload.SegmentID.String()),
		slog.Any("error", err))
	return err
}
