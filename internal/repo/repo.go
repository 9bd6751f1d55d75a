// Package repo persists conversation transcripts and completion audit rows.
//
// Expected schema:
//
//	CREATE TABLE conversation_turns (
//	    id         BIGSERIAL PRIMARY KEY,
//	    session_id TEXT NOT NULL,
//	    direction  TEXT NOT NULL,
//	    content    TEXT NOT NULL,
//	    intent     TEXT,
//	    outcome    TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE completions (
//	    id         BIGSERIAL PRIMARY KEY,
//	    session_id TEXT NOT NULL,
//	    intent     TEXT NOT NULL,
//	    slots      JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository writes transcript rows to postgres. A nil *Repository is valid
// and turns every call into a no-op, so the assistant runs without a
// database in development.
type Repository struct {
	pool *pgxpool.Pool
}

// TurnRecord is one logged utterance or response.
type TurnRecord struct {
	SessionID string
	Direction string // incoming | outgoing
	Content   string
	Intent    string
	Outcome   string // elicit | completed | fallback
}

// New connects a pgx pool to the given database URL.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// InsertTurn logs one turn of the transcript.
func (r *Repository) InsertTurn(ctx context.Context, rec TurnRecord) error {
	if r == nil {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversation_turns (session_id, direction, content, intent, outcome)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`,
		rec.SessionID, rec.Direction, rec.Content, rec.Intent, rec.Outcome)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// InsertCompletion records a completed task frame for auditing.
func (r *Repository) InsertCompletion(ctx context.Context, sessionID, intent string, slots map[string]string) error {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO completions (session_id, intent, slots) VALUES ($1, $2, $3)`,
		sessionID, intent, payload)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() {
	if r != nil {
		r.pool.Close()
	}
}
