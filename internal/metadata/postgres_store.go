package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists bindings in a PostgreSQL table for deployments that
// own the metadata service themselves.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS upi_bindings (
    request_id BIGINT PRIMARY KEY,
    id UUID NOT NULL,
    upi_id TEXT NOT NULL,
    payee_name TEXT NOT NULL DEFAULT '',
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, requestID uint64) (*Binding, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, upi_id, payee_name, note, created_at
FROM upi_bindings
WHERE request_id = $1
`, int64(requestID))

	binding := Binding{RequestID: requestID}
	if err := row.Scan(&binding.ID, &binding.UPIID, &binding.PayeeName, &binding.Note, &binding.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (p *PostgresStore) Put(ctx context.Context, binding Binding) error {
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now().UTC()
	}

	_, err := p.pool.Exec(ctx, `
INSERT INTO upi_bindings (request_id, id, upi_id, payee_name, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (request_id) DO UPDATE
SET upi_id = EXCLUDED.upi_id,
    payee_name = EXCLUDED.payee_name,
    note = EXCLUDED.note
`, int64(binding.RequestID), binding.ID, binding.UPIID, binding.PayeeName, binding.Note, binding.CreatedAt)
	return err
}
