// Package session keeps per-user conversation state and the registry that
// owns it. Each user gets one Session holding message history and an agent
// handle; the Registry maps user ids to sessions and evicts idle ones.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// Agent is the conversational engine a session drives. The chat package
// provides the production implementation.
type Agent interface {
	// Invoke runs one turn: prior history plus the new message, returning
	// the assistant's reply. It must not retain or mutate history.
	Invoke(ctx context.Context, history []*ai.Message, message string) (string, error)
}

// Session is one user's conversation. A mutex serializes turns so two
// concurrent requests for the same user cannot interleave their history
// writes; requests for different users never contend.
type Session struct {
	userID string

	mu       sync.Mutex
	agent    Agent
	messages []*ai.Message

	// turns and lastUsed are read by the registry's listing and eviction
	// paths without the session lock, so neither ever waits behind an
	// in-flight model call.
	turns     atomic.Int64
	createdAt time.Time
	lastUsed  atomicTime
}

func newSession(userID string, agent Agent, now time.Time) *Session {
	s := &Session{
		userID:    userID,
		agent:     agent,
		createdAt: now,
	}
	s.lastUsed.Store(now)
	return s
}

// UserID returns the owning user's identifier.
func (s *Session) UserID() string { return s.userID }

// Ask runs one conversational turn. History grows only when the agent
// succeeds, so a failed turn leaves the conversation exactly as it was
// and the user can simply retry.
func (s *Session) Ask(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed.Store(time.Now())

	reply, err := s.agent.Invoke(ctx, s.messages, message)
	if err != nil {
		return "", err
	}

	s.messages = append(s.messages,
		ai.NewUserMessage(ai.NewTextPart(message)),
		ai.NewModelMessage(ai.NewTextPart(reply)),
	)
	s.turns.Add(1)
	s.lastUsed.Store(time.Now())

	return reply, nil
}

// Turns returns the number of completed exchanges.
func (s *Session) Turns() int { return int(s.turns.Load()) }

// LastUsed returns when the session last served a request.
func (s *Session) LastUsed() time.Time { return s.lastUsed.Load() }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// atomicTime stores a time.Time readable without taking the session lock,
// so the eviction sweep never blocks behind an in-flight model call.
type atomicTime struct {
	mu sync.RWMutex
	t  time.Time
}

func (a *atomicTime) Store(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) Load() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.t
}
