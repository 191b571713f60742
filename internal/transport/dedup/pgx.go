package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFilter is the multi-process Filter: several adapter processes
// sharing one Postgres instance purely for deduplication bookkeeping.
// Session state itself stays process-local and in-memory, per the
// Non-goal against persisting conversation state across restarts — this
// table is a short-TTL cache, safe to truncate at any time.
type PostgresFilter struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresFilter connects to Postgres and ensures the dedup table
// exists. ttl <= 0 uses DefaultTTL.
func NewPostgresFilter(ctx context.Context, dsn string, ttl time.Duration) (*PostgresFilter, error) {
	if ttl <= 0 {
		ttl = DefaultTTL * time.Second
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to dedup postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping dedup postgres: %w", err)
	}

	f := &PostgresFilter{pool: pool, ttl: ttl}
	if err := f.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return f, nil
}

func (f *PostgresFilter) ensureSchema(ctx context.Context) error {
	_, err := f.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inbound_event_dedup (
			event_key  TEXT PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// Seen inserts key, expiring at now+ttl, unless an unexpired row already
// exists; an unexpired existing row means key is a duplicate. Expired
// rows are overwritten in the same statement so no separate sweep is
// needed.
func (f *PostgresFilter) Seen(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(f.ttl)

	tag, err := f.pool.Exec(ctx, `
		INSERT INTO inbound_event_dedup (event_key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (event_key) DO UPDATE
			SET expires_at = EXCLUDED.expires_at
			WHERE inbound_event_dedup.expires_at < $3
	`, key, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("dedup insert: %w", err)
	}

	// RowsAffected() == 0 means the ON CONFLICT WHERE clause skipped the
	// update because the existing row has not expired yet: a duplicate.
	return tag.RowsAffected() == 0, nil
}

// Close releases the underlying connection pool.
func (f *PostgresFilter) Close() {
	f.pool.Close()
}
