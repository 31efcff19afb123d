package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

// visionTasks pairs each vision task with the event type whose absence
// means the segment still needs it.
var visionTasks = []struct {
	taskType  string
	eventType string
}{
	{queue.TaskVisionOCR, models.EventTypeOCR},
	{queue.TaskVisionObjects, models.EventTypeObject},
	{queue.TaskVisionFaces, models.EventTypeFace},
	{queue.TaskVisionScreenshots, models.EventTypeScreenshot},
}

func lookback(cfg config.SchedulerConfig) time.Duration {
	minutes := cfg.LookbackMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

func batchLimit(cfg config.SchedulerConfig) int {
	if cfg.EnqueueBatch <= 0 {
		return 200
	}
	return cfg.EnqueueBatch
}

func payloadFor(seg *models.Segment) queue.SegmentPayload {
	return queue.SegmentPayload{
		SegmentID: seg.ID,
		StartedAt: seg.StartedAt,
		ChannelID: seg.ChannelID,
	}
}

// NewASRScheduler enqueues transcription for completed segments with audio
// and no transcript.
func NewASRScheduler(segments repository.SegmentRepository, enq Enqueuer, cfg config.SchedulerConfig, logger *slog.Logger) *StageScheduler {
	var s *StageScheduler
	s = newStageScheduler(queue.QueueASR, cfg, logger, func(ctx context.Context) (int, error) {
		missing, err := segments.ListMissingTranscripts(ctx, repository.MissingArtifactFilter{
			Since: time.Now().UTC().Add(-lookback(cfg)),
			Limit: batchLimit(cfg),
		})
		if err != nil {
			return 0, err
		}

		enqueued := 0
		for _, seg := range missing {
			ok, err := enq.EnqueueSegment(ctx, queue.TaskASRTranscribe, payloadFor(seg), queue.EnqueueOptions{
				DedupeTTL: cfg.DedupeTTL,
				MaxRetry:  -1,
			})
			if err != nil {
				return enqueued, err
			}
			if !ok {
				continue
			}
			enqueued++
			if err := segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, repository.StageASR, models.StageStatusQueued); err != nil {
				s.logger.Warn("marking segment queued failed",
					slog.String("segment_id", seg.ID.String()), slog.Any("error", err))
			}
		}
		return enqueued, nil
	})
	return s
}

// NewVisionScheduler enqueues OCR, object, face and screenshot extraction
// for completed segments with video that are missing the matching events.
func NewVisionScheduler(segments repository.SegmentRepository, enq Enqueuer, cfg config.SchedulerConfig, logger *slog.Logger) *StageScheduler {
	var s *StageScheduler
	s = newStageScheduler(queue.QueueVision, cfg, logger, func(ctx context.Context) (int, error) {
		filter := repository.MissingArtifactFilter{
			Since: time.Now().UTC().Add(-lookback(cfg)),
			Limit: batchLimit(cfg),
		}

		enqueued := 0
		for _, vt := range visionTasks {
			missing, err := segments.ListMissingVisualEvents(ctx, vt.eventType, filter)
			if err != nil {
				return enqueued, err
			}
			for _, seg := range missing {
				// Each vision task carries its own dedupe key, so a segment
				// missing several artifacts enqueues them all in one sweep.
				ok, err := enq.EnqueueSegment(ctx, vt.taskType, payloadFor(seg), queue.EnqueueOptions{
					DedupeTTL: cfg.DedupeTTL,
					MaxRetry:  -1,
				})
				if err != nil {
					return enqueued, err
				}
				if !ok {
					continue
				}
				enqueued++
				if err := segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, repository.StageVision, models.StageStatusQueued); err != nil {
					s.logger.Warn("marking segment queued failed",
						slog.String("segment_id", seg.ID.String()), slog.Any("error", err))
				}
			}
		}
		return enqueued, nil
	})
	return s
}

// NewNLPScheduler enqueues entity and alert extraction for transcribed
// segments with no entity rows yet. The alert task rides along with the
// deduped entities task so both run exactly once per window.
func NewNLPScheduler(segments repository.SegmentRepository, enq Enqueuer, cfg config.SchedulerConfig, logger *slog.Logger) *StageScheduler {
	var s *StageScheduler
	s = newStageScheduler(queue.QueueNLP, cfg, logger, func(ctx context.Context) (int, error) {
		missing, err := segments.ListMissingEntities(ctx, repository.MissingArtifactFilter{
			Since: time.Now().UTC().Add(-lookback(cfg)),
			Limit: batchLimit(cfg),
		})
		if err != nil {
			return 0, err
		}

		enqueued := 0
		for _, seg := range missing {
			payload := payloadFor(seg)
			ok, err := enq.EnqueueSegment(ctx, queue.TaskNLPEntities, payload, queue.EnqueueOptions{
				DedupeTTL: cfg.DedupeTTL,
				MaxRetry:  -1,
			})
			if err != nil {
				return enqueued, err
			}
			if !ok {
				continue
			}
			enqueued++
			if _, err := enq.EnqueueSegment(ctx, queue.TaskNLPAlerts, payload, queue.EnqueueOptions{MaxRetry: -1}); err != nil {
				return enqueued, err
			}
			enqueued++
			if err := segments.SetStageStatus(ctx, seg.ID, seg.StartedAt, repository.StageNLP, models.StageStatusQueued); err != nil {
				s.logger.Warn("marking segment queued failed",
					slog.String("segment_id", seg.ID.String()), slog.Any("error", err))
			}
		}
		return enqueued, nil
	})
	return s
}
