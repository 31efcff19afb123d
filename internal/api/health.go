package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// healthHandler handles the liveness endpoint.
type healthHandler struct{}

func newHealthHandler() *healthHandler {
	return &healthHandler{}
}

// Register registers the health route with the API.
func (h *healthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns ok when the server is up",
		Tags:        []string{"System"},
	}, h.Get)
}

// HealthOutput is the output for the health check.
type HealthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Get reports liveness.
func (h *healthHandler) Get(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	resp := &HealthOutput{}
	resp.Body.Status = "ok"
	return resp, nil
}
