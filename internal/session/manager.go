package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bolke-ai/bolke/internal/history"
	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/pkg/provider/live"
)

// Manager owns the set of live sessions. One session per id; opening a
// second session with an id already in use is an error.
type Manager struct {
	provider live.Provider
	retrier  *search.Retrier
	platform string
	hist     history.Store
	voice    string
	metrics  *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerConfig holds the shared dependencies handed to every session.
type ManagerConfig struct {
	Provider live.Provider
	Retrier  *search.Retrier
	Platform string
	History  history.Store
	Voice    string
	Metrics  *observe.Metrics
}

// NewManager creates an empty session registry.
func NewManager(cfg ManagerConfig) *Manager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Manager{
		provider: cfg.Provider,
		retrier:  cfg.Retrier,
		platform: cfg.Platform,
		hist:     cfg.History,
		voice:    cfg.Voice,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Open registers and returns a new session. An empty id gets a generated
// one. The caller drives the session with Run and must call Release when it
// reaches a terminal state.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = newSessionID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("session %q already active", id)
	}

	s := New(Config{
		ID:       id,
		Provider: m.provider,
		Retrier:  m.retrier,
		Platform: m.platform,
		History:  m.hist,
		Voice:    m.voice,
		Metrics:  m.metrics,
	})
	m.sessions[id] = s
	m.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session registered", "session_id", id, "active", len(m.sessions))
	return s, nil
}

// Get returns the session with the given id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Release removes a terminated session from the registry.
func (m *Manager) Release(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session released", "session_id", id, "active", len(m.sessions))
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// newSessionID returns a random 16-hex-char session id.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
