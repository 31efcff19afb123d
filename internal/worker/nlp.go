package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/nlp"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/queue"
	"github.com/mobasher/mobasher/internal/repository"
)

// Model tags recorded on entity rows.
const (
	entityModelDict      = "dict-v1"
	entityModelHeuristic = "heuristic-v1"
	fallbackEntityLabel  = "TERM"
)

// NLPWorker consumes the nlp queue: dictionary entities and watchlist
// alerts over the normalized transcript text.
type NLPWorker struct {
	Base
	transcripts repository.TranscriptRepository
	entities    repository.EntityRepository
	alerts      repository.AlertRepository
	entityIndex *nlp.PhraseIndex
	alertIndex  *nlp.PhraseIndex
}

// NewNLPWorker wires the dictionary matching worker. An empty entity index
// switches entity extraction to the token fallback; an empty alert index
// disables alerting.
func NewNLPWorker(
	segments repository.SegmentRepository,
	transcripts repository.TranscriptRepository,
	entities repository.EntityRepository,
	alerts repository.AlertRepository,
	dedupe Deduper,
	entityIndex, alertIndex *nlp.PhraseIndex,
	metrics *observability.StageMetrics,
	logger *slog.Logger,
) *NLPWorker {
	return &NLPWorker{
		Base: Base{
			Stage:    repository.StageNLP,
			Segments: segments,
			Dedupe:   dedupe,
			Metrics:  metrics,
			Logger:   logger.With(slog.String("component", "nlp-worker")),
		},
		transcripts: transcripts,
		entities:    entities,
		alerts:      alerts,
		entityIndex: entityIndex,
		alertIndex:  alertIndex,
	}
}

// Register attaches the worker's handlers to a stage server.
func (w *NLPWorker) Register(srv *queue.Server) {
	srv.Handle(queue.TaskNLPEntities, w.handle(queue.TaskNLPEntities, w.extractEntities))
	srv.Handle(queue.TaskNLPAlerts, w.handle(queue.TaskNLPAlerts, w.matchAlerts))
}

func (w *NLPWorker) transcriptText(ctx context.Context, seg *models.Segment) (string, error) {
	tr, err := w.transcripts.Get(ctx, seg.ID, seg.StartedAt)
	if err != nil {
		return "", fmt.Errorf("loading transcript: %w", err)
	}
	if tr == nil {
		return "", fmt.Errorf("%w: segment %s has no transcript", asynq.SkipRetry, seg.ID)
	}
	return tr.NormalizedText(), nil
}

func (w *NLPWorker) extractEntities(ctx context.Context, payload queue.SegmentPayload, seg *models.Segment) error {
	text, err := w.transcriptText(ctx, seg)
	if err != nil {
		return err
	}

	var rows []*models.Entity
	if w.entityIndex != nil && w.entityIndex.Len() > 0 {
		for _, m := range w.entityIndex.FindAll(text) {
			rows = append(rows, w.entityRow(seg, m.Term, m.Name, entityModelDict, m.CharStart, m.CharEnd))
		}
	} else {
		for _, term := range nlp.FallbackTerms(text) {
			start, end := runeSpan(text, term)
			rows = append(rows, w.entityRow(seg, term, fallbackEntityLabel, entityModelHeuristic, start, end))
		}
	}

	if err := w.entities.ReplaceForSegment(ctx, seg.ID, rows); err != nil {
		return fmt.Errorf("storing entities: %w", err)
	}
	w.Logger.Info("entities extracted",
		slog.String("segment_id", seg.ID.String()),
		slog.Int("count", len(rows)))
	return nil
}

func (w *NLPWorker) entityRow(seg *models.Segment, text, label, model string, charStart, charEnd int) *models.Entity {
	return &models.Entity{
		SegmentID: seg.ID,
		ChannelID: seg.ChannelID,
		StartedAt: seg.StartedAt,
		EndedAt:   seg.EndedAt,
		Text:      text,
		TextNorm:  models.StringPtr(nlp.NormalizeArabic(text)),
		Label:     label,
		CharStart: models.IntPtr(charStart),
		CharEnd:   models.IntPtr(charEnd),
		Model:     model,
	}
}

func (w *NLPWorker) matchAlerts(ctx context.Context, payload queue.SegmentPayload, seg *models.Segment) error {
	if w.alertIndex == nil || w.alertIndex.Len() == 0 {
		return nil
	}
	text, err := w.transcriptText(ctx, seg)
	if err != nil {
		return err
	}

	var rows []*models.Alert
	for _, m := range w.alertIndex.FindAll(text) {
		rows = append(rows, &models.Alert{
			ChannelID:     seg.ChannelID,
			SegmentID:     seg.ID,
			MatchedPhrase: m.Term,
			Category:      m.Name,
			Payload: models.JSONMap{
				"segment_started_at": seg.StartedAt.UTC().Format(time.RFC3339),
				"char_start":         m.CharStart,
				"char_end":           m.CharEnd,
			},
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := w.alerts.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("storing alerts: %w", err)
	}
	w.Logger.Info("alerts raised",
		slog.String("segment_id", seg.ID.String()),
		slog.Int("count", len(rows)))
	return nil
}

// runeSpan locates the first occurrence of term in text as rune offsets.
func runeSpan(text, term string) (int, int) {
	byteIdx := strings.Index(text, term)
	if byteIdx < 0 {
		return 0, utf8.RuneCountInString(term)
	}
	start := utf8.RuneCountInString(text[:byteIdx])
	return start, start + utf8.RuneCountInString(term)
}
