package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

// visionEventTypes maps each vision task to the event type it produces.
var visionEventTypes = map[string]string{
	queue.TaskVisionOCR:         models.EventTypeOCR,
	queue.TaskVisionObjects:     models.EventTypeObject,
	queue.TaskVisionFaces:       models.EventTypeFace,
	queue.TaskVisionScreenshots: models.EventTypeScreenshot,
}

// VisionWorker consumes the vision queue. Each task runs its analyser over
// the segment video and replaces that task's events; OCR additionally folds
// the frame-level readings into display spans.
type VisionWorker struct {
	Base
	events    repository.VisualEventRepository
	cfg       config.VisionConfig
	merger    SpanMerger
	analysers map[string]Analyser
}

// NewVisionWorker wires the vision worker. Analysers are attached per task
// with SetAnalyser; tasks without one are not registered.
func NewVisionWorker(
	segments repository.SegmentRepository,
	events repository.VisualEventRepository,
	dedupe Deduper,
	cfg config.VisionConfig,
	metrics *observability.StageMetrics,
	logger *slog.Logger,
	dataRoot string,
) *VisionWorker {
	return &VisionWorker{
		Base: Base{
			Stage:    repository.StageVision,
			Segments: segments,
			Dedupe:   dedupe,
			Metrics:  metrics,
			Logger:   logger.With(slog.String("component", "vision-worker")),
			DataRoot: dataRoot,
		},
		events: events,
		cfg:    cfg,
		merger: SpanMerger{
			TextSimThreshold: cfg.OCRTextSimThresh,
			IoUThreshold:     cfg.OCRIoUThresh,
			Window:           cfg.OCRMergeWindow,
		},
		analysers: make(map[string]Analyser),
	}
}

// SetAnalyser attaches the engine for one vision task.
func (w *VisionWorker) SetAnalyser(taskType string, a Analyser) {
	w.analysers[taskType] = a
}

// Register attaches a handler for every task that has an analyser.
func (w *VisionWorker) Register(srv *queue.Server) {
	for taskType := range w.analysers {
		tt := taskType
		srv.Handle(tt, w.handle(tt, func(ctx context.Context, payload queue.SegmentPayload, seg *models.Segment) error {
			return w.analyse(ctx, tt, seg)
		}))
	}
}

func (w *VisionWorker) analyse(ctx context.Context, taskType string, seg *models.Segment) error {
	eventType, ok := visionEventTypes[taskType]
	if !ok {
		return fmt.Errorf("%w: unknown vision task %s", asynq.SkipRetry, taskType)
	}
	if seg.VideoPath == nil || *seg.VideoPath == "" {
		return fmt.Errorf("%w: segment %s has no video", asynq.SkipRetry, seg.ID)
	}
	path, err := ResolveMedia(*seg.VideoPath, w.DataRoot)
	if err != nil {
		return err
	}

	out, err := w.analysers[taskType].Run(ctx, Input{Segment: seg, MediaPath: path})
	if err != nil {
		return fmt.Errorf("running %s: %w", taskType, err)
	}

	events := out.Events
	for _, ev := range events {
		ev.SegmentID = seg.ID
		ev.SegmentStartedAt = seg.StartedAt
		ev.ChannelID = seg.ChannelID
		if ev.EventType == "" {
			ev.EventType = eventType
		}
		if ev.Data == nil {
			ev.Data = models.JSONMap{}
		}
	}

	if taskType == queue.TaskVisionOCR {
		spans := w.merger.Merge(observations(events))
		if !w.cfg.OCRWriteRaw {
			events = nil
		}
		events = append(events, w.spanEvents(seg, spans)...)
	}

	// Replace this task's events so retries stay idempotent.
	if _, err := w.events.DeleteForSegment(ctx, seg.ID, seg.StartedAt, eventType); err != nil {
		return fmt.Errorf("clearing %s events: %w", eventType, err)
	}
	if eventType == models.EventTypeOCR {
		if _, err := w.events.DeleteForSegment(ctx, seg.ID, seg.StartedAt, models.EventTypeOCRSpan); err != nil {
			return fmt.Errorf("clearing ocr_span events: %w", err)
		}
	}
	if err := w.events.CreateBatch(ctx, events); err != nil {
		return fmt.Errorf("storing %s events: %w", eventType, err)
	}

	w.Logger.Info("segment analysed",
		slog.String("task", taskType),
		slog.String("segment_id", seg.ID.String()),
		slog.Int("events", len(events)))
	return nil
}

// observations converts raw OCR events into merger input.
func observations(events []*models.VisualEvent) []OCRObservation {
	var obs []OCRObservation
	for _, ev := range events {
		text, _ := ev.Data["text"].(string)
		if text == "" {
			continue
		}
		region, _ := ev.Data["region"].(string)
		fontSize, _ := ev.Data["font_size"].(float64)
		conf := 0.0
		if ev.Confidence != nil {
			conf = *ev.Confidence
		}
		obs = append(obs, OCRObservation{
			Region:     region,
			Text:       text,
			BBox:       ev.BBox,
			Offset:     ev.TimestampOffset,
			Confidence: conf,
			FontSize:   fontSize,
		})
	}
	return obs
}

func (w *VisionWorker) spanEvents(seg *models.Segment, spans []OCRSpan) []*models.VisualEvent {
	var out []*models.VisualEvent
	for _, s := range spans {
		data := models.JSONMap{
			"text":       s.Text,
			"region":     s.Region,
			"end_offset": s.End,
			"frames":     s.Frames,
		}
		if s.FontSize > 0 {
			data["font_size"] = s.FontSize
		}
		out = append(out, &models.VisualEvent{
			SegmentID:        seg.ID,
			SegmentStartedAt: seg.StartedAt,
			ChannelID:        seg.ChannelID,
			TimestampOffset:  s.Start,
			EventType:        models.EventTypeOCRSpan,
			BBox:             s.BBox,
			Confidence:       models.Float64Ptr(s.Confidence),
			Data:             data,
		})
	}
	return out
}
