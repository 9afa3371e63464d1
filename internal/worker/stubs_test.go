package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

type execResult struct {
	tag pgconn.CommandTag
	err error
}

type runnerStub struct {
	rows         []pgx.Row
	queryRowSQL  []string
	queryRowArgs [][]any
	execResults  []execResult
	execSQL      []string
	execCalls    int
	// queryRowErr, when set, answers QueryRow once scripted rows run out.
	// Left nil, the stub answers ErrNoRows and the loop sees an empty queue.
	queryRowErr error
}

func (r *runnerStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.execSQL = append(r.execSQL, sql)
	if r.execCalls >= len(r.execResults) {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	res := r.execResults[r.execCalls]
	r.execCalls++
	return res.tag, res.err
}

func (r *runnerStub) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *runnerStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.queryRowSQL = append(r.queryRowSQL, sql)
	r.queryRowArgs = append(r.queryRowArgs, args)
	if len(r.rows) == 0 {
		if r.queryRowErr != nil {
			return rowStub{err: r.queryRowErr}
		}
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

type txStub struct{ run pg.Runner }

func (t *txStub) WithTx(_ context.Context, fn func(run pg.Runner) error) error {
	return fn(t.run)
}

func claimedJobRow(j jobs.Job) rowStub {
	return rowStub{scanFn: func(dest ...any) error {
		*(dest[0].(*uuid.UUID)) = j.ID
		*(dest[1].(*string)) = j.Type
		*(dest[4].(*string)) = j.PayloadHash
		*(dest[5].(*jobs.State)) = j.State
		*(dest[6].(*int32)) = j.Attempts
		*(dest[7].(*int32)) = j.MaxAttempts
		if j.LeaseOwner != nil {
			*(dest[8].(**string)) = j.LeaseOwner
		}
		if j.LeaseExpiresAt != nil {
			*(dest[9].(**time.Time)) = j.LeaseExpiresAt
		}
		*(dest[10].(*int64)) = j.FencingToken
		*(dest[13].(*time.Time)) = j.CreatedAt
		*(dest[14].(*time.Time)) = j.UpdatedAt
		return nil
	}}
}

func fenceRow(token int64, expires *time.Time, dbNow time.Time) rowStub {
	return rowStub{scanFn: func(dest ...any) error {
		*(dest[0].(*int64)) = token
		if expires != nil {
			*(dest[1].(**time.Time)) = expires
		}
		*(dest[2].(*time.Time)) = dbNow
		return nil
	}}
}

func lockTokenRow(token int64) rowStub {
	return rowStub{scanFn: func(dest ...any) error {
		*(dest[0].(*int64)) = token
		return nil
	}}
}

func existsRow(exists bool) rowStub {
	return rowStub{scanFn: func(dest ...any) error {
		*(dest[0].(*bool)) = exists
		return nil
	}}
}

type countingWaiter struct{ calls int }

func (w *countingWaiter) Wait(ctx context.Context, timeout time.Duration) { w.calls++ }

func testLogger() *logger.Logger { return logger.Nop() }

func testMetrics() *metrics.Set { return metrics.NewSet() }
