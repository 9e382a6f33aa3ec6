package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	// Chat requests can legitimately block through several backoff rounds,
	// so the write timeout must exceed the worst-case retry schedule.
	writeTimeout    = 10 * time.Minute
	idleTimeout     = 2 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   log.Logger        // Required
	Registry *session.Registry // Required
	Prober   Prober            // Required: toolbox connectivity probe for /health

	CORSOrigins []string // Allowed origins for CORS
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int      // Per-IP rate limiter burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.Prober == nil {
		return nil, errors.New("toolbox prober is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	logger := cfg.Logger

	ch := &chatHandler{registry: cfg.Registry, logger: logger}
	sh := &sessionHandler{registry: cfg.Registry, logger: logger}
	hh := &healthHandler{prober: cfg.Prober, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", ch.send)
	mux.HandleFunc("DELETE /reset-context/{user_id}", sh.reset)
	mux.HandleFunc("GET /sessions", sh.list)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so monitoring traffic is
	// never rate limited or logged per request.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.check)
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP on addr until ctx is canceled, then shuts down
// gracefully, letting in-flight chat turns finish within the shutdown
// timeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("HTTP server ready",
		"addr", addr,
		"endpoints", "/chat, /reset-context/{user_id}, /sessions, /health",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
