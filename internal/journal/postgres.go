package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opencode-ai/wflow/pkg/types"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS wflow_events (
	session_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (session_id, seq)
)`

// Postgres is a durable backend storing one row per event.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps an existing pool. Call Migrate before first use.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to dsn and creates the events table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("journal: postgres backend needs a dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	pg := NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}

// Migrate creates the events table.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Append takes a transaction-scoped advisory lock on the session so the
// next sequence number is computed and inserted atomically.
func (p *Postgres) Append(ctx context.Context, e types.Event) (types.Event, error) {
	if err := validateSession(e.SessionID); err != nil {
		return types.Event{}, err
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return types.Event{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", e.SessionID); err != nil {
		return types.Event{}, fmt.Errorf("lock session: %w", err)
	}

	var seq int64
	err = tx.QueryRow(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM wflow_events WHERE session_id = $1", e.SessionID).Scan(&seq)
	if err != nil {
		return types.Event{}, fmt.Errorf("next sequence: %w", err)
	}
	e.Sequence = seq

	payload, err := json.Marshal(e)
	if err != nil {
		return types.Event{}, err
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO wflow_events (session_id, seq, id, kind, created_at, payload) VALUES ($1, $2, $3, $4, $5, $6)",
		e.SessionID, e.Sequence, e.ID, string(e.Kind), e.Time, payload)
	if err != nil {
		return types.Event{}, fmt.Errorf("append %s event: %w", e.Kind, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Event{}, err
	}
	return e, nil
}

func (p *Postgres) ReadAll(ctx context.Context, sessionID string) ([]types.Event, error) {
	rows, err := p.db.Query(ctx, "SELECT payload FROM wflow_events WHERE session_id = $1 ORDER BY seq", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []types.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e types.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *Postgres) Has(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	err := p.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM wflow_events WHERE session_id = $1)", sessionID).Scan(&ok)
	return ok, err
}

// Sessions returns session ids ordered by their first event.
func (p *Postgres) Sessions(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, "SELECT session_id FROM wflow_events GROUP BY session_id ORDER BY MIN(created_at), session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.db.Close()
}
