package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/filmdesk/filmdesk/internal/chat"
	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/session"
)

// stubAgent returns canned replies or a fixed error.
type stubAgent struct {
	reply string
	err   error
}

func (a *stubAgent) Invoke(context.Context, []*ai.Message, string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

// stubProber reports fixed toolbox health.
type stubProber struct {
	count int
	err   error
}

func (p *stubProber) Ping(context.Context) (int, error) {
	return p.count, p.err
}

type serverOpts struct {
	agent  *stubAgent
	prober *stubProber
	burst  int
}

func newTestServer(t *testing.T, opts serverOpts) (*Server, *session.Registry) {
	t.Helper()

	agent := opts.agent
	if agent == nil {
		agent = &stubAgent{reply: "The film is available!"}
	}
	prober := opts.prober
	if prober == nil {
		prober = &stubProber{count: 3}
	}

	registry := session.NewRegistry(session.Config{
		NewAgent: func(string) session.Agent { return agent },
		Logger:   log.NewNop(),
	})
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Registry:  registry,
		Prober:    prober,
		RateBurst: opts.burst,
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	return srv, registry
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	registry := session.NewRegistry(session.Config{
		NewAgent: func(string) session.Agent { return &stubAgent{} },
		Logger:   log.NewNop(),
	})

	if _, err := NewServer(ServerConfig{Logger: log.NewNop(), Prober: &stubProber{}}); err == nil {
		t.Error("NewServer without registry should fail")
	}
	if _, err := NewServer(ServerConfig{Logger: log.NewNop(), Registry: registry}); err == nil {
		t.Error("NewServer without prober should fail")
	}
	if _, err := NewServer(ServerConfig{Registry: registry, Prober: &stubProber{}}); err == nil {
		t.Error("NewServer without logger should fail")
	}
}

func TestChat_OK(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{})
	rec := postChat(t, srv.Handler(), `{"message": "Is Alien available?", "user_id": "alice"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[ChatResponse](t, rec)
	if resp.Response != "The film is available!" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.UserID != "alice" {
		t.Errorf("user_id = %q, want alice", resp.UserID)
	}
}

func TestChat_GeneratesUserID(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t, serverOpts{})
	rec := postChat(t, srv.Handler(), `{"message": "hello"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSON[ChatResponse](t, rec)
	if resp.UserID == "" {
		t.Fatal("server must mint a user_id when the client omits one")
	}
	if registry.Len() != 1 {
		t.Errorf("sessions = %d, want 1", registry.Len())
	}

	// A second anonymous request gets its own fresh session.
	rec2 := postChat(t, srv.Handler(), `{"message": "hello again"}`)
	resp2 := decodeJSON[ChatResponse](t, rec2)
	if resp2.UserID == resp.UserID {
		t.Error("anonymous requests must not share a conversation")
	}
}

func TestChat_BadRequests(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{})

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message": "", "user_id": "alice"}`},
		{"whitespace message", `{"message": "   "}`},
		{"missing message", `{"user_id": "alice"}`},
		{"malformed json", `{"message": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := postChat(t, srv.Handler(), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			resp := decodeJSON[ErrorResponse](t, rec)
			if resp.Error != "invalid_request" {
				t.Errorf("error = %q, want invalid_request", resp.Error)
			}
		})
	}
}

func TestChat_RateLimitExhaustion(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{
		agent: &stubAgent{err: chat.NewRateLimitError(5, errors.New("429"))},
	})
	rec := postChat(t, srv.Handler(), `{"message": "hi", "user_id": "alice"}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429; body: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
	resp := decodeJSON[ErrorResponse](t, rec)
	if !strings.Contains(resp.Message, "after 5 retries") {
		t.Errorf("message = %q, want retry count", resp.Message)
	}
}

func TestChat_UpstreamFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{
		agent: &stubAgent{err: chat.NewUpstreamError(errors.New("stack trace\nmodel unavailable"))},
	})
	rec := postChat(t, srv.Handler(), `{"message": "hi", "user_id": "alice"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeJSON[ErrorResponse](t, rec)
	if resp.Message != "model unavailable" {
		t.Errorf("message = %q, want last line only", resp.Message)
	}
}

func TestChat_ConversationPersistsAcrossRequests(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t, serverOpts{})
	for i := range 3 {
		rec := postChat(t, srv.Handler(), fmt.Sprintf(`{"message": "q%d", "user_id": "alice"}`, i))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	if registry.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", registry.Len())
	}
	if turns := registry.GetOrCreate("alice").Turns(); turns != 3 {
		t.Errorf("turns = %d, want 3", turns)
	}
}

func TestResetContext(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t, serverOpts{})
	registry.GetOrCreate("alice")

	req := httptest.NewRequest(http.MethodDelete, "/reset-context/alice", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[ResetResponse](t, rec)
	if resp.Status != "success" {
		t.Errorf("status = %q, want success", resp.Status)
	}
	if registry.Len() != 0 {
		t.Errorf("sessions = %d, want 0 after reset", registry.Len())
	}
}

func TestResetContext_UnknownUser(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{})
	req := httptest.NewRequest(http.MethodDelete, "/reset-context/nobody", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeJSON[ErrorResponse](t, rec)
	if resp.Error != "not_found" {
		t.Errorf("error = %q, want not_found", resp.Error)
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t, serverOpts{})
	registry.GetOrCreate("alice")
	registry.GetOrCreate("bob")

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSON[SessionListResponse](t, rec)
	if resp.Count != 2 || len(resp.Sessions) != 2 {
		t.Errorf("count = %d, sessions = %d, want 2", resp.Count, len(resp.Sessions))
	}
}

func TestHealth_Connected(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{prober: &stubProber{count: 7}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSON[HealthResponse](t, rec)
	if resp.Status != "healthy" || !resp.ToolboxConnected {
		t.Errorf("got %+v, want healthy and connected", resp)
	}
	if resp.ToolCount != 7 {
		t.Errorf("tool_count = %d, want 7", resp.ToolCount)
	}
}

func TestHealth_ToolboxDown(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{
		prober: &stubProber{err: errors.New("connection refused")},
	})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	// The endpoint itself stays 200; the body carries the failure.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSON[HealthResponse](t, rec)
	if resp.Status != "unhealthy" || resp.ToolboxConnected {
		t.Errorf("got %+v, want unhealthy and disconnected", resp)
	}
	if resp.Error == "" {
		t.Error("error detail missing from unhealthy response")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{})
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRequestID_Echoed(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{})
	rec := postChat(t, srv.Handler(), `{"message": "hi", "user_id": "alice"}`)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message": "hi"}`))
	req.Header.Set("X-Request-ID", "fixed-id")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want fixed-id", got)
	}
}

func TestRateLimit_PerIP(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, serverOpts{burst: 2})

	var last int
	for range 5 {
		rec := postChat(t, srv.Handler(), `{"message": "hi", "user_id": "alice"}`)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()

	registry := session.NewRegistry(session.Config{
		NewAgent: func(string) session.Agent { return &stubAgent{reply: "ok"} },
		Logger:   log.NewNop(),
	})
	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Registry:    registry,
		Prober:      &stubProber{},
		CORSOrigins: []string{"http://localhost:8501"},
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8501" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// Unlisted origins get no CORS headers.
	req2 := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req2.Header.Set("Origin", "http://evil.example")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	if rec2.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin must not be allowed")
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	t.Parallel()

	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"direct", "10.0.0.1:1234", nil, false, "10.0.0.1"},
		{"proxy headers ignored when untrusted", "10.0.0.1:1234",
			map[string]string{"X-Real-IP": "1.2.3.4"}, false, "10.0.0.1"},
		{"x-real-ip", "10.0.0.1:1234",
			map[string]string{"X-Real-IP": "1.2.3.4"}, true, "1.2.3.4"},
		{"x-forwarded-for first hop", "10.0.0.1:1234",
			map[string]string{"X-Forwarded-For": "5.6.7.8, 9.9.9.9"}, true, "5.6.7.8"},
		{"invalid header falls back", "10.0.0.1:1234",
			map[string]string{"X-Real-IP": "not-an-ip"}, true, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
