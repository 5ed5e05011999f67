package history

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] holding a capped sliding window of turns
// per session. It is the default backend: history is session-scoped state
// with no durability requirement.
type MemStore struct {
	mu       sync.Mutex
	window   int
	sessions map[string][]Turn
}

// NewMemStore creates a MemStore retaining at most window turns per session.
// A window of 0 or less uses [DefaultWindow].
func NewMemStore(window int) *MemStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemStore{
		window:   window,
		sessions: make(map[string][]Turn),
	}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], turn)
	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}
	s.sessions[sessionID] = turns
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[sessionID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Evict implements [Store].
func (s *MemStore) Evict(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports how many sessions currently hold history. Used by tests and
// the session manager's teardown assertions.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
