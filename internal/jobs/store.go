package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Store holds the SQL for the jobs and ledger_entries tables. It is
// stateless; callers pass a Runner so the same queries work inside and
// outside transactions.
//
// Every eligibility, expiry, and fencing comparison below happens in SQL
// against the store's now(). Worker wall clocks are never consulted.
type Store struct{}

func NewStore() *Store { return &Store{} }

const jobColumns = `id, type, payload, idempotency_key, payload_hash, state,
	attempts, max_attempts, lease_owner, lease_expires_at, fencing_token,
	next_run_at, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &j.IdempotencyKey, &j.PayloadHash, &j.State,
		&j.Attempts, &j.MaxAttempts, &j.LeaseOwner, &j.LeaseExpiresAt, &j.FencingToken,
		&j.NextRunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Insert persists a freshly submitted job. When an idempotency key is set the
// insert is a no-op on key conflict and ok=false is returned; the caller
// re-reads the existing row and resolves the tie.
func (s *Store) Insert(ctx context.Context, run pg.Runner, j *Job) (ok bool, err error) {
	row := run.QueryRow(ctx, `
		INSERT INTO jobs (
			id, type, payload, idempotency_key, payload_hash,
			state, attempts, max_attempts, fencing_token
		) VALUES ($1,$2,$3,$4,$5,$6,0,$7,0)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING created_at
	`, j.ID, j.Type, j.Payload, j.IdempotencyKey, j.PayloadHash, StateQueued, j.MaxAttempts)

	var createdAt time.Time
	if err := row.Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetByID(ctx context.Context, run pg.Runner, id uuid.UUID) (*Job, error) {
	j, err := scanJob(run.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, run pg.Runner, key string) (*Job, error) {
	j, err := scanJob(run.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// Claim atomically elects one eligible job and installs a new lease
// generation. Eligible means queued and due, or running with an expired
// lease. Returns nil when no job is eligible.
//
// The claim is a single statement: selection, lock, and lease install cannot
// be observed separately, so no partial lease state exists.
func (s *Store) Claim(ctx context.Context, run pg.Runner, workerID string, lease time.Duration, onlyJobID *uuid.UUID) (*Job, error) {
	j, err := scanJob(run.QueryRow(ctx, `
		UPDATE jobs SET
			state = $1,
			lease_owner = $2,
			lease_expires_at = now() + make_interval(secs => $3),
			fencing_token = fencing_token + 1,
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE (($4::uuid IS NULL) OR id = $4)
			  AND (
				(state = $5 AND (next_run_at IS NULL OR next_run_at <= now()))
				OR (state = $1 AND lease_expires_at < now())
			  )
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		StateRunning, workerID, lease.Seconds(), onlyJobID, StateQueued))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// Fence validates the caller's lease generation against the row, using the
// store's clock read in the same statement. It modifies nothing.
func (s *Store) Fence(ctx context.Context, run pg.Runner, id uuid.UUID, token int64) error {
	var (
		stored  int64
		expires *time.Time
		dbNow   time.Time
	)
	err := run.QueryRow(ctx,
		`SELECT fencing_token, lease_expires_at, now() FROM jobs WHERE id = $1`, id,
	).Scan(&stored, &expires, &dbNow)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stored != token {
		return fmt.Errorf("%w: job %s holds token %d, caller has %d", ErrStaleToken, id, stored, token)
	}
	if expires != nil && expires.Before(dbNow) {
		return fmt.Errorf("%w: job %s lease ended at %s", ErrLeaseExpired, id, expires.Format(time.RFC3339))
	}
	return nil
}

// LockToken locks the job row and returns its current fencing token.
func (s *Store) LockToken(ctx context.Context, run pg.Runner, id uuid.UUID) (int64, error) {
	var stored int64
	err := run.QueryRow(ctx,
		`SELECT fencing_token FROM jobs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stored, err
}

// InsertLedgerEntry records the side-effect for one lease generation. The
// insert is a no-op on conflict: (job_id, fencing_token) is the idempotency
// fence, so replays of the same generation cannot double-apply.
func (s *Store) InsertLedgerEntry(ctx context.Context, run pg.Runner, e LedgerEntry) error {
	_, err := run.Exec(ctx, `
		INSERT INTO ledger_entries (job_id, fencing_token, account_id, delta)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, fencing_token) DO NOTHING
	`, e.JobID, e.FencingToken, e.AccountID, e.Delta)
	return err
}

// ConvergeSucceeded moves the job to succeeded, charging the completed
// attempt and clearing the lease, but only while the job is not yet
// succeeded, the caller's generation is still current, and its ledger entry
// exists. Returns false when a concurrent reclaim won (the reconciler
// converges such jobs from the ledger record) or when the job has already
// converged, so a replayed apply charges no second attempt.
func (s *Store) ConvergeSucceeded(ctx context.Context, run pg.Runner, id uuid.UUID, token int64) (bool, error) {
	tag, err := run.Exec(ctx, `
		UPDATE jobs SET
			state = $1,
			attempts = attempts + 1,
			lease_owner = NULL,
			lease_expires_at = NULL,
			next_run_at = NULL,
			updated_at = now()
		WHERE id = $2
		  AND state <> $1
		  AND fencing_token = $3
		  AND EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE job_id = $2 AND fencing_token = $3
		  )
	`, StateSucceeded, id, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RequeueForRetry re-queues a failed attempt with backoff. Gated on the job
// still running under the caller's token; otherwise a silent no-op, because
// a concurrent reclaim already took over.
func (s *Store) RequeueForRetry(ctx context.Context, run pg.Runner, id uuid.UUID, token int64, newAttempts int32, lastError string, delay time.Duration) (bool, error) {
	tag, err := run.Exec(ctx, `
		UPDATE jobs SET
			state = $1,
			attempts = $2,
			last_error = $3,
			next_run_at = now() + make_interval(secs => $4),
			lease_owner = NULL,
			lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $5 AND state = $6 AND fencing_token = $7
	`, StateQueued, newAttempts, lastError, delay.Seconds(), id, StateRunning, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkExhausted dead-letters a job whose attempt budget ran out. Same token
// gate as RequeueForRetry.
func (s *Store) MarkExhausted(ctx context.Context, run pg.Runner, id uuid.UUID, token int64, newAttempts int32, lastError string) (bool, error) {
	tag, err := run.Exec(ctx, `
		UPDATE jobs SET
			state = $1,
			attempts = $2,
			last_error = $3,
			lease_owner = NULL,
			lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $4 AND state = $5 AND fencing_token = $6
	`, StateFailed, newAttempts, lastError, id, StateRunning, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReconcileBatch converges up to limit jobs whose ledger entry exists but
// whose state never reached succeeded. Locked rows are skipped; competing
// reconciler passes never block each other.
func (s *Store) ReconcileBatch(ctx context.Context, run pg.Runner, limit int) ([]uuid.UUID, error) {
	rows, err := run.Query(ctx, `
		WITH candidates AS (
			SELECT j.id
			FROM jobs j
			JOIN ledger_entries l ON l.job_id = j.id
			WHERE j.state <> $1
			ORDER BY j.updated_at NULLS FIRST
			LIMIT $2
			FOR UPDATE OF j SKIP LOCKED
		)
		UPDATE jobs SET
			state = $1,
			lease_owner = NULL,
			lease_expires_at = NULL,
			next_run_at = NULL,
			updated_at = now()
		WHERE id IN (SELECT id FROM candidates)
		RETURNING id
	`, StateSucceeded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repaired []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		repaired = append(repaired, id)
	}
	return repaired, rows.Err()
}

// CountLedgerEntries reports how many ledger rows exist for a job. Used by
// invariant checks and tests; the count can never legally exceed one once
// the job is terminal.
func (s *Store) CountLedgerEntries(ctx context.Context, run pg.Runner, id uuid.UUID) (int64, error) {
	var n int64
	err := run.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE job_id = $1`, id,
	).Scan(&n)
	return n, err
}
