package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxConfig carries optional per-transaction settings.
type TxConfig struct {
	Iso      pgx.TxIsoLevel // default: ReadCommitted
	ReadOnly bool

	// SET LOCAL timeouts for the duration of the transaction.
	StatementTimeout         time.Duration
	IdleInTransactionTimeout time.Duration
}

// WithTx runs fn inside a transaction with default options (ReadCommitted, RW).
// The transaction commits or rolls back on every exit path, including panics.
func (c *Client) WithTx(ctx context.Context, fn func(run Runner) error) error {
	return c.WithTxOpts(ctx, TxConfig{}, fn)
}

// WithTxRO runs fn inside a read-only transaction, for consistent multi-query reads.
func (c *Client) WithTxRO(ctx context.Context, fn func(run Runner) error) error {
	return c.WithTxOpts(ctx, TxConfig{ReadOnly: true}, fn)
}

// WithTxOpts runs fn inside a transaction with explicit options.
func (c *Client) WithTxOpts(ctx context.Context, cfg TxConfig, fn func(run Runner) error) (err error) {
	opts := pgx.TxOptions{
		IsoLevel:   cfg.Iso,
		AccessMode: pgx.ReadWrite,
	}
	if cfg.ReadOnly {
		opts.AccessMode = pgx.ReadOnly
	}

	tx, err := c.Pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	if cfg.StatementTimeout > 0 {
		ms := cfg.StatementTimeout.Milliseconds()
		if _, e := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); e != nil {
			return e
		}
	}
	if cfg.IdleInTransactionTimeout > 0 {
		ms := cfg.IdleInTransactionTimeout.Milliseconds()
		if _, e := tx.Exec(ctx, fmt.Sprintf("SET LOCAL idle_in_transaction_session_timeout = %d", ms)); e != nil {
			return e
		}
	}

	err = fn(txRunner{tx: tx})
	return err
}
