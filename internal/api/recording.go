package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

// recordingHandler handles recording API endpoints.
type recordingHandler struct {
	recordings repository.RecordingRepository
}

func newRecordingHandler(recordings repository.RecordingRepository) *recordingHandler {
	return &recordingHandler{recordings: recordings}
}

// Register registers the recording routes with the API.
func (h *recordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/recordings",
		Summary:     "List recordings",
		Description: "Returns capture sessions, newest first",
		Tags:        []string{"Recordings"},
	}, h.List)
}

// ListRecordingsInput is the input for listing recordings.
type ListRecordingsInput struct {
	ChannelID string    `query:"channel_id" doc:"Filter by channel"`
	Since     time.Time `query:"since" required:"false" doc:"Only recordings started at or after this time (RFC3339)"`
	Status    string    `query:"status" enum:"running,completed,failed,stopped," doc:"Filter by final status"`
	Limit     int       `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset    int       `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListRecordingsOutput is the output for listing recordings.
type ListRecordingsOutput struct {
	Body struct {
		Items []*models.Recording `json:"items"`
		Meta  PaginationMeta      `json:"meta"`
	}
}

// List returns capture sessions.
func (h *recordingHandler) List(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	filter := repository.RecordingFilter{
		ChannelID: input.ChannelID,
		Status:    input.Status,
		Limit:     input.Limit,
		Offset:    input.Offset,
	}
	if !input.Since.IsZero() {
		since := input.Since
		filter.Since = &since
	}

	recordings, err := h.recordings.List(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list recordings", err)
	}

	resp := &ListRecordingsOutput{}
	resp.Body.Items = recordings
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(recordings))
	return resp, nil
}
