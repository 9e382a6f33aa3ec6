package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/filmdesk/filmdesk/internal/chat"
	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/session"
)

// maxChatBodyBytes caps the chat request body.
const maxChatBodyBytes = 1 << 20 // 1 MB

// ChatRequest is the POST /chat request body. UserID is optional; omitting
// it starts a fresh anonymous conversation whose generated id comes back in
// the response for the client to reuse.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// ChatResponse is the POST /chat success body.
type ChatResponse struct {
	Response string `json:"response"`
	UserID   string `json:"user_id"`
}

// chatHandler serves the conversational endpoint.
type chatHandler struct {
	registry *session.Registry
	logger   log.Logger
}

// send handles POST /chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON", h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required", h.logger)
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.New().String()
		h.logger.Debug("no user_id supplied, generated one",
			"user_id", userID,
			"request_id", requestIDFromContext(r.Context()))
	}

	sess := h.registry.GetOrCreate(userID)
	reply, err := sess.Ask(r.Context(), req.Message)
	if err != nil {
		h.writeAskError(w, r, userID, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: reply, UserID: userID}, h.logger)
}

// writeAskError maps agent failures to HTTP statuses: exhausted rate-limit
// retries become 429, everything else 500. Client disconnects get the nginx
// 499 convention so they are distinguishable in logs.
func (h *chatHandler) writeAskError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	requestID := requestIDFromContext(r.Context())

	var rle *chat.RateLimitError
	if errors.As(err, &rle) {
		h.logger.Warn("chat rejected, rate limit retries exhausted",
			"user_id", userID,
			"retries", rle.Retries,
			"request_id", requestID)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", rle.Error(), h.logger)
		return
	}

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.Info("chat canceled by client",
			"user_id", userID,
			"request_id", requestID)
		writeError(w, 499, "client_closed_request", "request canceled", h.logger)
		return
	}

	h.logger.Error("chat failed",
		"user_id", userID,
		"error", err,
		"request_id", requestID)
	writeError(w, http.StatusInternalServerError, "chat_failed", err.Error(), h.logger)
}
