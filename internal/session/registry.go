package session

import (
	"context"
	"sync"
	"time"

	"github.com/filmdesk/filmdesk/internal/log"
)

// Factory builds the agent handle for a new session. The registry calls it
// once per user id under its own lock, so implementations should be cheap;
// expensive shared setup (tool discovery, prompt loading) belongs in the
// closure's captured state.
type Factory func(userID string) Agent

// Config configures a Registry.
type Config struct {
	NewAgent Factory
	Logger   log.Logger

	// IdleTTL evicts sessions untouched for this long. Zero disables
	// eviction and sessions live until reset or shutdown.
	IdleTTL time.Duration

	// SweepInterval controls how often the janitor scans for idle
	// sessions. Defaults to a tenth of IdleTTL, at least one second.
	SweepInterval time.Duration
}

// Registry owns all live sessions, keyed by user id. All methods are safe
// for concurrent use.
type Registry struct {
	newAgent Factory
	logger   log.Logger
	idleTTL  time.Duration
	sweep    time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. cfg.NewAgent and cfg.Logger are
// required.
func NewRegistry(cfg Config) *Registry {
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = cfg.IdleTTL / 10
		if sweep < time.Second {
			sweep = time.Second
		}
	}
	return &Registry{
		newAgent: cfg.NewAgent,
		logger:   cfg.Logger,
		idleTTL:  cfg.IdleTTL,
		sweep:    sweep,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for userID, creating it on first use.
// Repeated calls with the same id return the identical session, so history
// accumulates across requests.
func (r *Registry) GetOrCreate(userID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s = newSession(userID, r.newAgent(userID), time.Now())
	r.sessions[userID] = s
	r.logger.Info("session created", "user_id", userID, "sessions", len(r.sessions))
	return s
}

// Remove deletes the session for userID and reports whether one existed.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; !ok {
		return false
	}
	delete(r.sessions, userID)
	r.logger.Info("session removed", "user_id", userID, "sessions", len(r.sessions))
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Info is a read-only view of one session for the listing endpoint.
type Info struct {
	UserID    string    `json:"user_id"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Snapshot returns session metadata for every live session. It reads only
// lock-free session fields, so listing returns promptly even while a
// session is mid-turn.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, Info{
			UserID:    s.UserID(),
			Turns:     s.Turns(),
			CreatedAt: s.CreatedAt(),
			LastUsed:  s.LastUsed(),
		})
	}
	return infos
}

// Run sweeps idle sessions until ctx is canceled. It returns immediately
// when eviction is disabled. Intended to run in its own goroutine.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []string
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Info("session evicted after idle timeout",
			"user_id", id,
			"idle_ttl", r.idleTTL,
			"sessions", remaining)
	}
}
