package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

// segmentHandler handles segment API endpoints.
type segmentHandler struct {
	segments repository.SegmentRepository
}

func newSegmentHandler(segments repository.SegmentRepository) *segmentHandler {
	return &segmentHandler{segments: segments}
}

// Register registers the segment routes with the API.
func (h *segmentHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSegments",
		Method:      "GET",
		Path:        "/segments",
		Summary:     "List segments",
		Description: "Returns media segments, newest first",
		Tags:        []string{"Segments"},
	}, h.List)
}

// ListSegmentsInput is the input for listing segments.
type ListSegmentsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel"`
	Start     time.Time `query:"start" required:"false" doc:"Only segments started at or after this time (RFC3339)"`
	End       time.Time `query:"end" required:"false" doc:"Only segments started at or before this time (RFC3339)"`
	Status    string    `query:"status" enum:"created,processing,completed,failed," doc:"Filter by segment status"`
	Limit     int       `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Page size"`
	Offset    int       `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListSegmentsOutput is the output for listing segments.
type ListSegmentsOutput struct {
	Body struct {
		Items []*models.Segment `json:"items"`
		Meta  PaginationMeta    `json:"meta"`
	}
}

// List returns media segments.
func (h *segmentHandler) List(ctx context.Context, input *ListSegmentsInput) (*ListSegmentsOutput, error) {
	filter := repository.SegmentFilter{
		ChannelID: input.ChannelID,
		Status:    input.Status,
		Limit:     input.Limit,
		Offset:    input.Offset,
	}
	if !input.Start.IsZero() {
		start := input.Start
		filter.Start = &start
	}
	if !input.End.IsZero() {
		end := input.End
		filter.End = &end
	}

	segments, err := h.segments.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list segments", err)
	}

	resp := &ListSegmentsOutput{}
	resp.Body.Items = segments
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(segments))
	return resp, nil
}
