package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	"github.com/faultline-io/faultline/internal/payload"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Submitter is the idempotent submission path.
type Submitter struct {
	store              *Store
	maxAttemptsDefault int32
	log                *logger.Logger
	met                *metrics.Set
}

func NewSubmitter(store *Store, maxAttemptsDefault int32, log *logger.Logger, met *metrics.Set) *Submitter {
	return &Submitter{
		store:              store,
		maxAttemptsDefault: maxAttemptsDefault,
		log:                log,
		met:                met,
	}
}

type SubmitInput struct {
	Type           string
	Payload        payload.Value
	IdempotencyKey *string
	MaxAttempts    int32 // 0 means the configured default
}

// Submit persists a new queued job and returns it. With an idempotency key,
// resubmission of the same payload returns the original job; reuse of the
// key with a different payload fails with ErrIdempotencyConflict. Ties
// between concurrent submitters are resolved by the unique index on
// idempotency_key: the insert is a conflict no-op and the loser re-reads
// the winner's row.
func (s *Submitter) Submit(ctx context.Context, run pg.Runner, in SubmitInput) (*Job, error) {
	if in.Type == "" {
		return nil, fmt.Errorf("jobs: submit requires a type")
	}

	payloadHash := in.Payload.CanonicalHash()

	if in.IdempotencyKey != nil {
		existing, err := s.store.GetByIdempotencyKey(ctx, run, *in.IdempotencyKey)
		if err == nil {
			return s.resolveExisting(existing, payloadHash)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttemptsDefault
	}

	j := &Job{
		ID:             uuid.Must(uuid.NewV7()),
		Type:           in.Type,
		Payload:        in.Payload,
		IdempotencyKey: in.IdempotencyKey,
		PayloadHash:    payloadHash,
		State:          StateQueued,
		MaxAttempts:    maxAttempts,
	}

	inserted, err := s.store.Insert(ctx, run, j)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race on the unique key. The winner's row decides.
		existing, err := s.store.GetByIdempotencyKey(ctx, run, *in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		return s.resolveExisting(existing, payloadHash)
	}

	s.met.JobsSubmitted.Inc()
	s.log.Infow("job_submitted", "job_id", j.ID.String(), "type", j.Type)
	return j, nil
}

func (s *Submitter) resolveExisting(existing *Job, payloadHash string) (*Job, error) {
	if existing.PayloadHash != payloadHash {
		return nil, fmt.Errorf("%w: job %s", ErrIdempotencyConflict, existing.ID)
	}
	return existing, nil
}
