// Package history provides the per-session conversation store.
//
// Each live voice session keeps a short sliding window of conversation turns
// keyed by session id — used to give the model recent context and to debug
// sessions after the fact. The store replaces the ad-hoc process-wide history
// map of earlier designs with an explicit abstraction: bounded per session,
// created on first append, and evicted as part of session teardown.
//
// Two implementations are provided: [MemStore] (default) and the
// Postgres-backed [PgStore].
package history

import (
	"context"
	"time"
)

// DefaultWindow is the number of turns retained per session when no explicit
// window is configured.
const DefaultWindow = 10

// Turn is one conversation turn within a session.
type Turn struct {
	// Role identifies the speaker: "user" or "assistant".
	Role string

	// Text is the turn content (a transcript line or tool summary).
	Text string

	// Timestamp is when the turn was recorded.
	Timestamp time.Time
}

// Store is the conversation history boundary. Implementations must be safe
// for concurrent use, though a single session's history is only ever touched
// by that session's goroutines.
type Store interface {
	// Append records a turn for sessionID, trimming the session's history to
	// the store's window if necessary.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Recent returns up to n turns for sessionID, oldest first. A session
	// with no history yields an empty slice, not an error.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)

	// Evict discards all history for sessionID. Called during session
	// teardown so state never outlives the session that produced it.
	Evict(ctx context.Context, sessionID string) error
}
