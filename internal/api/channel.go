package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mobasher/mobasher/internal/models"
	"github.com/mobasher/mobasher/internal/repository"
)

// channelHandler handles channel API endpoints.
type channelHandler struct {
	channels repository.ChannelRepository
}

func newChannelHandler(channels repository.ChannelRepository) *channelHandler {
	return &channelHandler{channels: channels}
}

// Register registers the channel routes with the API.
func (h *channelHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/channels",
		Summary:     "List channels",
		Description: "Returns registered channels, oldest first",
		Tags:        []string{"Channels"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getChannel",
		Method:      "GET",
		Path:        "/channels/{id}",
		Summary:     "Get channel",
		Description: "Returns a channel by ID",
		Tags:        []string{"Channels"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "upsertChannel",
		Method:      "POST",
		Path:        "/channels",
		Summary:     "Upsert channel",
		Description: "Creates the channel or updates its mutable fields by ID",
		Tags:        []string{"Channels"},
	}, h.Upsert)
}

// ListChannelsInput is the input for listing channels.
type ListChannelsInput struct {
	ActiveOnly bool `query:"active_only" doc:"Only channels currently enabled for capture"`
	Limit      int  `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
	Offset     int  `query:"offset" default:"0" minimum:"0" doc:"Page start"`
}

// ListChannelsOutput is the output for listing channels.
type ListChannelsOutput struct {
	Body struct {
		Items []*models.Channel `json:"items"`
		Meta  PaginationMeta    `json:"meta"`
	}
}

// List returns registered channels.
func (h *channelHandler) List(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	channels, err := h.channels.List(ctx, input.ActiveOnly, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list channels", err)
	}

	resp := &ListChannelsOutput{}
	resp.Body.Items = channels
	resp.Body.Meta = pageMeta(input.Limit, input.Offset, len(channels))
	return resp, nil
}

// GetChannelInput is the input for getting a channel.
type GetChannelInput struct {
	ID string `path:"id" doc:"Channel ID"`
}

// GetChannelOutput is the output for getting a channel.
type GetChannelOutput struct {
	Body models.Channel
}

// GetByID returns a channel by ID.
func (h *channelHandler) GetByID(ctx context.Context, input *GetChannelInput) (*GetChannelOutput, error) {
	channel, err := h.channels.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get channel", err)
	}
	if channel == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("channel %s not found", input.ID))
	}

	return &GetChannelOutput{Body: *channel}, nil
}

// UpsertChannelInput is the input for upserting a channel.
type UpsertChannelInput struct {
	Body struct {
		ID          string         `json:"id" minLength:"1" maxLength:"64" doc:"Channel ID"`
		Name        string         `json:"name" minLength:"1" doc:"Display name"`
		Description string         `json:"description,omitempty" doc:"Free-form description"`
		URL         string         `json:"url" minLength:"1" doc:"Upstream stream URL"`
		Headers     models.JSONMap `json:"headers,omitempty" doc:"Extra HTTP headers sent upstream"`
		Active      *bool          `json:"active,omitempty" doc:"Whether capture is enabled (default true)"`
	}
}

// UpsertChannelOutput is the output for upserting a channel.
type UpsertChannelOutput struct {
	Body models.Channel
}

// Upsert creates or updates a channel.
func (h *channelHandler) Upsert(ctx context.Context, input *UpsertChannelInput) (*UpsertChannelOutput, error) {
	channel := &models.Channel{
		ID:          input.Body.ID,
		Name:        input.Body.Name,
		Description: input.Body.Description,
		URL:         input.Body.URL,
		Headers:     input.Body.Headers,
		Active:      true,
	}
	if input.Body.Active != nil {
		channel.Active = *input.Body.Active
	}

	if err := h.channels.Upsert(ctx, channel); err != nil {
		return nil, huma.Error500InternalServerError("failed to upsert channel", err)
	}

	stored, err := h.channels.GetByID(ctx, channel.ID)
	if err != nil || stored == nil {
		return nil, huma.Error500InternalServerError("failed to read back channel", err)
	}

	return &UpsertChannelOutput{Body: *stored}, nil
}
