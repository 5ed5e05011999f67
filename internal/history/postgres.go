package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Store = (*PgStore)(nil)

// ddlTurns creates the conversation turn log. One row per turn; the window
// is enforced on write by deleting rows older than the newest N.
const ddlTurns = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_session
    ON conversation_turns (session_id, id);
`

// PgStore is a PostgreSQL-backed [Store] on a pgx connection pool. Useful
// when sessions must survive process restarts or be inspected offline.
//
// All operations are safe for concurrent use.
type PgStore struct {
	pool   *pgxpool.Pool
	window int
}

// NewPgStore connects to the database at dsn, ensures the schema exists, and
// returns a store retaining at most window turns per session. A window of 0
// or less uses [DefaultWindow].
func NewPgStore(ctx context.Context, dsn string, window int) (*PgStore, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	return &PgStore{pool: pool, window: window}, nil
}

// Append implements [Store]. The insert and window trim run in one
// transaction so a crash cannot leave an over-long history.
func (s *PgStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversation_turns (session_id, role, text, created_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, turn.Role, turn.Text, turn.Timestamp,
	); err != nil {
		return fmt.Errorf("history: insert turn: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM conversation_turns
		 WHERE session_id = $1 AND id NOT IN (
		     SELECT id FROM conversation_turns
		     WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		 )`,
		sessionID, s.window,
	); err != nil {
		return fmt.Errorf("history: trim window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PgStore) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		n = s.window
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, text, created_at FROM (
		     SELECT id, role, text, created_at FROM conversation_turns
		     WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		 ) latest ORDER BY id ASC`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}
	return turns, nil
}

// Evict implements [Store].
func (s *PgStore) Evict(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("history: evict session: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used as a readiness probe.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *PgStore) Close() {
	s.pool.Close()
}
