package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

// visualEventHandler handles visual event and screenshot API endpoints.
type visualEventHandler struct {
	events repository.VisualEventRepository
}

func newVisualEventHandler(events repository.VisualEventRepository) *visualEventHandler {
	return &visualEventHandler{events: events}
}

// Register registers the visual event routes with the API.
func (h *visualEventHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVisualEvents",
		Method:      "GET",
		Path:        "/visual-events",
		Summary:     "List visual events",
		Description: "Returns computer-vision observations, newest first",
		Tags:        []string{"Vision"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listScreenshots",
		Method:      "GET",
		Path:        "/screenshots",
		Summary:     "List screenshots",
		Description: "Returns frame capture records, newest first",
		Tags:        []string{"Vision"},
	}, h.ListScreenshots)
}

// ListVisualEventsInput is the input for listing visual events.
type ListVisualEventsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel"`
	EventType string    `query:"event_type" enum:"ocr,ocr_span,object,face,logo,scene_change," doc:"Filter by event type"`
	Region    string    `query:"region" doc:"Filter OCR events by screen region"`
	Query     string    `query:"q" doc:"Substring match against the event text payload"`
	Since     time.Time `query:"since" required:"false" doc:"Only events for segments started at or after this time (RFC3339)"`
	Until     time.Time `query:"until" required:"false" doc:"Only events for segments started at or before this time (RFC3339)"`
	MinConf   float64   `query:"min_conf" minimum:"0" maximum:"1" doc:"Drop events below this confidence"`
	Limit     int       `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset    int       `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListVisualEventsOutput is the output for listing visual events.
type ListVisualEventsOutput struct {
	Body struct {
		Items []*models.VisualEvent `json:"items"`
		Meta  PaginationMeta        `json:"meta"`
	}
}

// List returns computer-vision observations.
func (h *visualEventHandler) List(ctx context.Context, input *ListVisualEventsInput) (*ListVisualEventsOutput, error) {
	filter := repository.VisualEventFilter{
		ChannelID:     input.ChannelID,
		EventType:     input.EventType,
		Region:        input.Region,
		Query:         input.Query,
		MinConfidence: input.MinConf,
		Limit:         input.Limit,
		Offset:        input.Offset,
	}
	if !input.Since.IsZero() {
		since := input.Since
		filter.Since = &since
	}
	if !input.Until.IsZero() {
		until := input.Until
		filter.Until = &until
	}

	events, err := h.events.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list visual events", err)
	}

	resp := &ListVisualEventsOutput{}
	resp.Body.Items = events
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(events))
	return resp, nil
}

// ListScreenshotsInput is the input for listing screenshots.
type ListScreenshotsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel"`
	Since     time.Time `query:"since" required:"false" doc:"Only screenshots for segments started at or after this time (RFC3339)"`
	Limit     int       `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Offset    int       `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListScreenshotsOutput is the output for listing screenshots.
type ListScreenshotsOutput struct {
	Body struct {
		Items []*models.VisualEvent `json:"items"`
		Meta  PaginationMeta        `json:"meta"`
	}
}

// ListScreenshots returns frame capture records.
func (h *visualEventHandler) ListScreenshots(ctx context.Context, input *ListScreenshotsInput) (*ListScreenshotsOutput, error) {
	filter := repository.VisualEventFilter{
		ChannelID: input.ChannelID,
		EventType: models.EventTypeScreenshot,
		Limit:     input.Limit,
		Offset:    input.Offset,
	}
	if !input.Since.IsZero() {
		since := input.Since
		filter.Since = &since
	}

	events, err := h.events.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list screenshots", err)
	}

	resp := &ListScreenshotsOutput{}
	resp.Body.Items = events
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(events))
	return resp, nil
}
