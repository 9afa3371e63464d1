package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/faultline-io/faultline/internal/payload"
)

func submitPayload(t *testing.T) payload.Value {
	t.Helper()
	return payload.Object(map[string]payload.Value{"a": payload.Int(1)})
}

func TestSubmit_NewJob(t *testing.T) {
	t.Parallel()

	r := &runnerStub{rows: []pgx.Row{rowStub{scanFn: scanTime(time.Now().UTC())}}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	j, err := s.Submit(context.Background(), r, SubmitInput{Type: "noop", Payload: submitPayload(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.ID == uuid.Nil {
		t.Fatalf("expected assigned id")
	}
	if j.State != StateQueued || j.MaxAttempts != 3 || j.FencingToken != 0 || j.Attempts != 0 {
		t.Fatalf("unexpected new job: %+v", j)
	}
	if j.PayloadHash == "" {
		t.Fatalf("expected payload hash")
	}
}

func TestSubmit_RequiresType(t *testing.T) {
	t.Parallel()

	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())
	if _, err := s.Submit(context.Background(), &runnerStub{}, SubmitInput{}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestSubmit_ExistingKeySamePayloadReturnsSameJob(t *testing.T) {
	t.Parallel()

	p := submitPayload(t)
	existing := Job{
		ID:             uuid.Must(uuid.NewV7()),
		Type:           "noop",
		IdempotencyKey: strPtr("k1"),
		PayloadHash:    p.CanonicalHash(),
		State:          StateQueued,
		MaxAttempts:    3,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	r := &runnerStub{rows: []pgx.Row{rowStub{scanFn: scanJobRow(existing)}}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	j, err := s.Submit(context.Background(), r, SubmitInput{Type: "noop", Payload: p, IdempotencyKey: strPtr("k1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.ID != existing.ID {
		t.Fatalf("expected the original job id")
	}
	if len(r.queryRowSQL) != 1 {
		t.Fatalf("no insert expected on the fast path, got %d statements", len(r.queryRowSQL))
	}
}

func TestSubmit_ExistingKeyDifferentPayloadConflicts(t *testing.T) {
	t.Parallel()

	existing := Job{
		ID:             uuid.Must(uuid.NewV7()),
		Type:           "noop",
		IdempotencyKey: strPtr("k1"),
		PayloadHash:    payload.Object(map[string]payload.Value{"a": payload.Int(2)}).CanonicalHash(),
		State:          StateQueued,
		MaxAttempts:    3,
	}
	r := &runnerStub{rows: []pgx.Row{rowStub{scanFn: scanJobRow(existing)}}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	_, err := s.Submit(context.Background(), r, SubmitInput{Type: "noop", Payload: submitPayload(t), IdempotencyKey: strPtr("k1")})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestSubmit_InsertRaceResolvedByWinnerRow(t *testing.T) {
	t.Parallel()

	p := submitPayload(t)
	winner := Job{
		ID:             uuid.Must(uuid.NewV7()),
		Type:           "noop",
		IdempotencyKey: strPtr("k1"),
		PayloadHash:    p.CanonicalHash(),
		State:          StateQueued,
		MaxAttempts:    3,
	}
	// Key lookup misses, insert conflicts, re-read finds the winner.
	r := &runnerStub{rows: []pgx.Row{
		rowStub{err: pgx.ErrNoRows},
		rowStub{err: pgx.ErrNoRows},
		rowStub{scanFn: scanJobRow(winner)},
	}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	j, err := s.Submit(context.Background(), r, SubmitInput{Type: "noop", Payload: p, IdempotencyKey: strPtr("k1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.ID != winner.ID {
		t.Fatalf("expected the winner's id")
	}
}

func TestSubmit_InsertRaceDifferentPayloadConflicts(t *testing.T) {
	t.Parallel()

	winner := Job{
		ID:             uuid.Must(uuid.NewV7()),
		Type:           "noop",
		IdempotencyKey: strPtr("k1"),
		PayloadHash:    "other-hash",
		State:          StateQueued,
		MaxAttempts:    3,
	}
	r := &runnerStub{rows: []pgx.Row{
		rowStub{err: pgx.ErrNoRows},
		rowStub{err: pgx.ErrNoRows},
		rowStub{scanFn: scanJobRow(winner)},
	}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	_, err := s.Submit(context.Background(), r, SubmitInput{Type: "noop", Payload: submitPayload(t), IdempotencyKey: strPtr("k1")})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestSubmit_MaxAttemptsOverride(t *testing.T) {
	t.Parallel()

	r := &runnerStub{rows: []pgx.Row{rowStub{scanFn: scanTime(time.Now().UTC())}}}
	s := NewSubmitter(NewStore(), 3, testLogger(), testMetrics())

	j, err := s.Submit(context.Background(), r, SubmitInput{Type: "flaky", Payload: submitPayload(t), MaxAttempts: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.MaxAttempts != 5 {
		t.Fatalf("expected override to 5, got %d", j.MaxAttempts)
	}
}
