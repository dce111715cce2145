package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists swap records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS swaps (
    id TEXT PRIMARY KEY,
    order_hash TEXT NOT NULL,
    secret_hash TEXT NOT NULL,
    state TEXT NOT NULL,
    accepted_amount TEXT NOT NULL,
    accepted_at TIMESTAMPTZ NOT NULL,
    src_escrow TEXT NOT NULL DEFAULT '',
    dst_escrow TEXT NOT NULL DEFAULT '',
    src_timelocks TEXT NOT NULL DEFAULT '',
    dst_timelocks TEXT NOT NULL DEFAULT '',
    src_deploy_tx TEXT NOT NULL DEFAULT '',
    dst_deploy_tx TEXT NOT NULL DEFAULT '',
    src_withdraw_tx TEXT NOT NULL DEFAULT '',
    dst_withdraw_tx TEXT NOT NULL DEFAULT '',
    src_cancel_tx TEXT NOT NULL DEFAULT '',
    dst_cancel_tx TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
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

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, order_hash, secret_hash, state, accepted_amount, accepted_at,
       src_escrow, dst_escrow, src_timelocks, dst_timelocks,
       src_deploy_tx, dst_deploy_tx, src_withdraw_tx, dst_withdraw_tx,
       src_cancel_tx, dst_cancel_tx, created_at, updated_at
FROM swaps
WHERE id = $1
`, id)

	var rec Record
	err := row.Scan(
		&rec.ID, &rec.OrderHash, &rec.SecretHash, &rec.State, &rec.AcceptedAmount, &rec.AcceptedAt,
		&rec.SrcEscrow, &rec.DstEscrow, &rec.SrcTimelocks, &rec.DstTimelocks,
		&rec.SrcDeployTx, &rec.DstDeployTx, &rec.SrcWithdrawTx, &rec.DstWithdrawTx,
		&rec.SrcCancelTx, &rec.DstCancelTx, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, record Record) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := p.pool.Exec(ctx, `
INSERT INTO swaps (
    id, order_hash, secret_hash, state, accepted_amount, accepted_at,
    src_escrow, dst_escrow, src_timelocks, dst_timelocks,
    src_deploy_tx, dst_deploy_tx, src_withdraw_tx, dst_withdraw_tx,
    src_cancel_tx, dst_cancel_tx, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE
SET state = EXCLUDED.state,
    accepted_amount = EXCLUDED.accepted_amount,
    accepted_at = EXCLUDED.accepted_at,
    src_escrow = EXCLUDED.src_escrow,
    dst_escrow = EXCLUDED.dst_escrow,
    src_timelocks = EXCLUDED.src_timelocks,
    dst_timelocks = EXCLUDED.dst_timelocks,
    src_deploy_tx = EXCLUDED.src_deploy_tx,
    dst_deploy_tx = EXCLUDED.dst_deploy_tx,
    src_withdraw_tx = EXCLUDED.src_withdraw_tx,
    dst_withdraw_tx = EXCLUDED.dst_withdraw_tx,
    src_cancel_tx = EXCLUDED.src_cancel_tx,
    dst_cancel_tx = EXCLUDED.dst_cancel_tx,
    updated_at = EXCLUDED.updated_at
`,
		record.ID, record.OrderHash, record.SecretHash, record.State, record.AcceptedAmount, record.AcceptedAt,
		record.SrcEscrow, record.DstEscrow, record.SrcTimelocks, record.DstTimelocks,
		record.SrcDeployTx, record.DstDeployTx, record.SrcWithdrawTx, record.DstWithdrawTx,
		record.SrcCancelTx, record.DstCancelTx, record.CreatedAt, record.UpdatedAt,
	)
	return err
}
