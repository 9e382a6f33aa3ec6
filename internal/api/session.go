package api

import (
	"fmt"
	"net/http"

	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/session"
)

// sessionHandler serves context reset and session listing.
type sessionHandler struct {
	registry *session.Registry
	logger   log.Logger
}

// ResetResponse is the DELETE /reset-context success body.
type ResetResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// reset handles DELETE /reset-context/{user_id}. Resetting an unknown user
// is a 404 so clients notice typos instead of silently "clearing" nothing.
func (h *sessionHandler) reset(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	if !h.registry.Remove(userID) {
		writeError(w, http.StatusNotFound, "not_found",
			fmt.Sprintf("no conversation context found for user %s", userID), h.logger)
		return
	}

	h.logger.Info("conversation context reset",
		"user_id", userID,
		"request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, ResetResponse{
		Status:  "success",
		Message: fmt.Sprintf("context reset for user %s", userID),
	}, h.logger)
}

// SessionListResponse is the GET /sessions body.
type SessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// list handles GET /sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	infos := h.registry.Snapshot()
	writeJSON(w, http.StatusOK, SessionListResponse{
		Sessions: infos,
		Count:    len(infos),
	}, h.logger)
}
