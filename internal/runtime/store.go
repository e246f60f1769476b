// Package runtime holds the in-memory session registry that internal/acp
// and internal/server.Services share: one Session per active
// conversation, tracking which agent is driving it and how to cancel an
// in-flight turn.
//
// Modeled on internal/scheduler/session_manager.go's approach, which
// keeps an LRU cache of *CachedSession keyed by session ID behind a
// single sync.RWMutex. This package keeps that single-mutex map shape
// but drops the LRU/eviction machinery (there is no "database-backed cache miss"
// here — a runtime Session is pure in-process state, bounded instead by
// how many sessions are actually open) and generalizes the cached value
// from a database row + message slice into the run-state ACP actually
// needs: which agent owns the session and how to cancel its active turn.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentcore/internal/domain"
)

// ErrSessionNotFound is returned by Get and Cancel for an unknown ID. It
// wraps domain.ErrNotFound, so callers route it to the client, never to
// the model.
var ErrSessionNotFound = fmt.Errorf("runtime: session not found: %w", domain.ErrNotFound)

// ErrSessionExists is returned by Create when the ID is already in use.
var ErrSessionExists = errors.New("runtime: session already exists")

// Session is the live run-state for one ACP session: which conversation
// and agent it's bound to, and how to cancel whatever turn is currently
// in flight.
type Session struct {
	ConversationID     string
	AgentID            string
	Mode               string
	Model              string
	CancellationHandle context.CancelFunc
}

// Store is a single-mutex registry of active Sessions, the session
// runtime store wired into internal/server.Services and consulted by
// every acp.AgentHandler method that needs to resolve a sessionId.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session under id. It fails if id is already in
// use so callers can't silently clobber a live turn's cancellation
// handle.
func (s *Store) Create(id string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return ErrSessionExists
	}
	s.sessions[id] = sess
	return nil
}

// Get returns the session registered under id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Modify runs fn against the session registered under id while holding
// the store's lock, letting callers update multiple fields (mode, model,
// cancellation handle) as one atomic step instead of racing a
// read-modify-write across two calls.
func (s *Store) Modify(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(sess)
	return nil
}

// Cancel invokes the session's cancellation handle, if any, stopping its
// in-flight turn without removing the session itself.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if sess.CancellationHandle != nil {
		sess.CancellationHandle()
	}
	return nil
}

// Delete removes a session from the store entirely.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
