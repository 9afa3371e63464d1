package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner is a shared interface for pool and transaction. Store-level code
// takes a Runner so it works identically inside and outside a transaction.
type Runner interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type poolRunner struct{ p *pgxpool.Pool }

func (r poolRunner) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	return r.p.Exec(ctx, q, args...)
}
func (r poolRunner) Query(ctx context.Context, q string, args ...any) (pgx.Rows, error) {
	return r.p.Query(ctx, q, args...)
}
func (r poolRunner) QueryRow(ctx context.Context, q string, args ...any) pgx.Row {
	return r.p.QueryRow(ctx, q, args...)
}

type txRunner struct{ tx pgx.Tx }

func (r txRunner) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	return r.tx.Exec(ctx, q, args...)
}
func (r txRunner) Query(ctx context.Context, q string, args ...any) (pgx.Rows, error) {
	return r.tx.Query(ctx, q, args...)
}
func (r txRunner) QueryRow(ctx context.Context, q string, args ...any) pgx.Row {
	return r.tx.QueryRow(ctx, q, args...)
}

// RunnerFromPool returns pool-backed Runner (outside transaction).
func (c *Client) RunnerFromPool() Runner { return poolRunner{p: c.Pool} }
