package api

import (
	"context"
	"net/http"
	"time"

	"github.com/filmdesk/filmdesk/internal/log"
)

// Prober checks that the toolbox MCP server is reachable. The toolbox
// package provides the production implementation.
type Prober interface {
	// Ping returns the number of tools the toolbox exposes, or an error
	// when it is unreachable.
	Ping(ctx context.Context) (int, error)
}

const healthProbeTimeout = 5 * time.Second

// HealthResponse reports service health and toolbox connectivity.
type HealthResponse struct {
	Status           string `json:"status"`
	ToolboxConnected bool   `json:"toolbox_connected"`
	ToolCount        int    `json:"tool_count,omitempty"`
	Error            string `json:"error,omitempty"`
}

// healthHandler serves GET /health. It always answers 200: a broken toolbox
// is reported in the body, never as a failed probe, so orchestrators keep
// routing to the API while the dependency recovers.
type healthHandler struct {
	prober Prober
	logger log.Logger
}

func (h *healthHandler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", ToolboxConnected: true}
	count, err := h.prober.Ping(ctx)
	if err != nil {
		h.logger.Warn("toolbox health probe failed", "error", err)
		resp = HealthResponse{
			Status:           "unhealthy",
			ToolboxConnected: false,
			Error:            err.Error(),
		}
	} else {
		resp.ToolCount = count
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
