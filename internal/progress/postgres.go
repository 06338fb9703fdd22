package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores records in the progress_records jsonb table. The
// pool is owned by the caller.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend wraps pool.
func NewPostgresBackend(pool *pgxpool.Pool) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) Get(ctx context.Context, userID string) (Record, error) {
	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM progress_records WHERE user_id = $1`,
		userID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress record: %w", err)
	}
	return Decode(data)
}

func (b *PostgresBackend) Put(ctx context.Context, userID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	_, err = b.pool.Exec(ctx,
		`INSERT INTO progress_records (user_id, data, updated_at)
		 VALUES ($1, $2::jsonb, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		userID,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert progress record: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error { return nil }
