package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

// transcriptHandler handles transcript API endpoints.
type transcriptHandler struct {
	transcripts repository.TranscriptRepository
	segments    repository.SegmentRepository
}

func newTranscriptHandler(transcripts repository.TranscriptRepository, segments repository.SegmentRepository) *transcriptHandler {
	return &transcriptHandler{transcripts: transcripts, segments: segments}
}

// Register registers the transcript routes with the API.
func (h *transcriptHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listTranscripts",
		Method:      "GET",
		Path:        "/transcripts",
		Summary:     "List transcripts",
		Description: "Returns transcripts paired with their segments, newest first",
		Tags:        []string{"Transcripts"},
	}, h.List)
}

// TranscriptItem pairs a transcript with the segment it covers.
type TranscriptItem struct {
	Segment    *models.Segment    `json:"segment,omitempty"`
	Transcript *models.Transcript `json:"transcript"`
}

// ListTranscriptsInput is the input for listing transcripts.
type ListTranscriptsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel"`
	Since     time.Time `query:"since" required:"false" doc:"Only transcripts for segments started at or after this time (RFC3339)"`
	Language  string    `query:"language" doc:"Filter by transcript language"`
	Query     string    `query:"q" doc:"Substring match against the transcript text"`
	Limit     int       `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset    int       `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListTranscriptsOutput is the output for listing transcripts.
type ListTranscriptsOutput struct {
	Body struct {
		Items []TranscriptItem `json:"items"`
		Meta  PaginationMeta   `json:"meta"`
	}
}

// List returns transcripts paired with their segments.
func (h *transcriptHandler) List(ctx context.Context, input *ListTranscriptsInput) (*ListTranscriptsOutput, error) {
	filter := repository.TranscriptFilter{
		ChannelID: input.ChannelID,
		Language:  input.Language,
		Limit:     input.Limit,
		Offset:    input.Offset,
	}
	if !input.Since.IsZero() {
		since := input.Since
		filter.Since = &since
	}

	var (
		transcripts []*models.Transcript
		err         error
	)
	if input.Query != "" {
		transcripts, err = h.transcripts.Search(ctx, input.Query, filter)
	} else {
		transcripts, err = h.transcripts.ListRecent(ctx, filter)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list transcripts", err)
	}

	resp := &ListTranscriptsOutput{}
	resp.Body.Items = make([]TranscriptItem, 0, len(transcripts))
	for _, tr := range transcripts {
		seg, err := h.segments.Get(ctx, tr.SegmentID, tr.SegmentStartedAt)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load segment", err)
		}
		resp.Body.Items = append(resp.Body.Items, TranscriptItem{Segment: seg, Transcript: tr})
	}
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(transcripts))
	return resp, nil
}
