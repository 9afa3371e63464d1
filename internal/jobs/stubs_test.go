package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Shared stubs for driving the store without a database. Queries are
// answered in call order; args are captured for assertions.

type execResult struct {
	tag pgconn.CommandTag
	err error
}

type queryResult struct {
	rows pgx.Rows
	err  error
}

type runnerStub struct {
	rows         []pgx.Row
	queryRowSQL  []string
	queryRowArgs [][]any

	execResults []execResult
	execSQL     []string
	execArgs    [][]any
	execCalls   int

	queryResults []queryResult
	queryCalls   int
}

func (r *runnerStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.execSQL = append(r.execSQL, sql)
	r.execArgs = append(r.execArgs, args)
	if r.execCalls >= len(r.execResults) {
		return mustTag("UPDATE 0"), nil
	}
	res := r.execResults[r.execCalls]
	r.execCalls++
	return res.tag, res.err
}

func (r *runnerStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if r.queryCalls >= len(r.queryResults) {
		return nil, errors.New("unexpected Query call")
	}
	res := r.queryResults[r.queryCalls]
	r.queryCalls++
	return res.rows, res.err
}

func (r *runnerStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.queryRowSQL = append(r.queryRowSQL, sql)
	r.queryRowArgs = append(r.queryRowArgs, args)
	if len(r.rows) == 0 {
		return rowStub{err: pgx.ErrNoRows}
	}
	out := r.rows[0]
	r.rows = r.rows[1:]
	return out
}

type rowStub struct {
	err    error
	scanFn func(dest ...any) error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return nil
}

// rowsStub implements pgx.Rows over pre-scripted scan functions.
type rowsStub struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return mustTag("UPDATE 0") }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Next() bool                                   { return r.idx < len(r.scans) }
func (r *rowsStub) Scan(dest ...any) error {
	fn := r.scans[r.idx]
	r.idx++
	return fn(dest...)
}
func (r *rowsStub) Values() ([]any, error) { return nil, nil }
func (r *rowsStub) RawValues() [][]byte    { return nil }
func (r *rowsStub) Conn() *pgx.Conn        { return nil }

func idRows(ids ...uuid.UUID) *rowsStub {
	var scans []func(dest ...any) error
	for _, id := range ids {
		id := id
		scans = append(scans, func(dest ...any) error {
			*(dest[0].(*uuid.UUID)) = id
			return nil
		})
	}
	return &rowsStub{scans: scans}
}

// txStub satisfies TxBeginner by running fn directly against the embedded
// runner, counting commits and rollbacks.
type txStub struct {
	run       pg.Runner
	beginErr  error
	commits   int
	rollbacks int
}

func (t *txStub) WithTx(_ context.Context, fn func(run pg.Runner) error) error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if err := fn(t.run); err != nil {
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

func scanJobRow(j Job) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*uuid.UUID)) = j.ID
		*(dest[1].(*string)) = j.Type
		// dest[2] is the payload; zero value stands in unless set.
		if dest[3] != nil && j.IdempotencyKey != nil {
			*(dest[3].(**string)) = j.IdempotencyKey
		}
		*(dest[4].(*string)) = j.PayloadHash
		*(dest[5].(*State)) = j.State
		*(dest[6].(*int32)) = j.Attempts
		*(dest[7].(*int32)) = j.MaxAttempts
		if j.LeaseOwner != nil {
			*(dest[8].(**string)) = j.LeaseOwner
		}
		if j.LeaseExpiresAt != nil {
			*(dest[9].(**time.Time)) = j.LeaseExpiresAt
		}
		*(dest[10].(*int64)) = j.FencingToken
		if j.NextRunAt != nil {
			*(dest[11].(**time.Time)) = j.NextRunAt
		}
		if j.LastError != nil {
			*(dest[12].(**string)) = j.LastError
		}
		*(dest[13].(*time.Time)) = j.CreatedAt
		*(dest[14].(*time.Time)) = j.UpdatedAt
		return nil
	}
}

func scanFenceRow(token int64, expires *time.Time, dbNow time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*int64)) = token
		if expires != nil {
			*(dest[1].(**time.Time)) = expires
		}
		*(dest[2].(*time.Time)) = dbNow
		return nil
	}
}

func scanInt64(v int64) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*int64)) = v
		return nil
	}
}

func scanTime(v time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*time.Time)) = v
		return nil
	}
}

func mustTag(v string) pgconn.CommandTag {
	return pgconn.NewCommandTag(v)
}

func testLogger() *logger.Logger { return logger.Nop() }

func testMetrics() *metrics.Set { return metrics.NewSet() }

func strPtr(s string) *string { return &s }
