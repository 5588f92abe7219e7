// Package session keeps per-conversation history in the serving process's
// memory. Sessions are created implicitly on first use and never expire;
// durability is the caller's concern.
package session

import (
	"sync"

	"ragserver/internal/domain"
)

type conversation struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// Store holds one append-only turn sequence per session id. Appends for
// different sessions do not block each other; appends for the same session
// are serialized.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*conversation)}
}

func (s *Store) get(sessionID string) *conversation {
	s.mu.RLock()
	c, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.sessions[sessionID]; ok {
		return c
	}
	c = &conversation{}
	s.sessions[sessionID] = c
	return c
}

// Append records one question/answer turn for the session.
func (s *Store) Append(sessionID, question, answer string) {
	c := s.get(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, domain.Turn{Question: question, Answer: answer})
}

// History returns a copy of the session's turns in append order.
func (s *Store) History(sessionID string) []domain.Turn {
	c := s.get(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}
