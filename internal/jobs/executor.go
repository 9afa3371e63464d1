package jobs

import (
	"context"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Outcome classifies what one execution attempt did to the job.
type Outcome int

const (
	// OutcomeSucceeded: effect committed, job converged (or left to the
	// reconciler).
	OutcomeSucceeded Outcome = iota
	// OutcomeStale: a fencing rejection aborted the attempt. Nothing was
	// written, nothing was charged.
	OutcomeStale
	// OutcomeRequeued: the handler failed and the job was re-queued with
	// backoff.
	OutcomeRequeued
	// OutcomeExhausted: the handler failed and the attempt budget ran out.
	OutcomeExhausted
	// OutcomeLost: the failure routing no-opped because another worker
	// already reclaimed the job.
	OutcomeLost
)

// Hooks are harness injection points. All optional; a hook that never
// returns (crash injection) is fine because every write it can interrupt is
// protected by fencing or idempotent.
type Hooks struct {
	// MidExecute runs while the attempt logically executes: after the
	// handler returns, before the re-fence.
	MidExecute func(ctx context.Context, j *Job)
	// AfterCommit runs after a successful apply.
	AfterCommit func(ctx context.Context, j *Job)
}

// Executor drives one claimed job through fence, handler, re-fence, apply.
type Executor struct {
	store    *Store
	run      pg.Runner
	registry *Registry
	applier  *Applier
	policy   *RetryPolicy

	Hooks Hooks

	log *logger.Logger
	met *metrics.Set
}

func NewExecutor(store *Store, run pg.Runner, registry *Registry, applier *Applier, policy *RetryPolicy, log *logger.Logger, met *metrics.Set) *Executor {
	return &Executor{
		store:    store,
		run:      run,
		registry: registry,
		applier:  applier,
		policy:   policy,
		log:      log,
		met:      met,
	}
}

// Execute runs the attempt protocol for a job the caller just claimed.
// Fencing rejections abort silently (no attempt charged, not a failure);
// handler errors route through the retry policy; store errors propagate for
// the worker loop to back off and retry.
//
// Between the re-fence and the applier transaction nothing may suspend
// except store round-trips; the lease duration budget assumes exactly that.
func (e *Executor) Execute(ctx context.Context, j *Job) (Outcome, error) {
	if err := e.store.Fence(ctx, e.run, j.ID, j.FencingToken); err != nil {
		return e.fenceOutcome(j, err)
	}

	e.log.Infow("execution_started",
		"job_id", j.ID.String(),
		"type", j.Type,
		"fencing_token", j.FencingToken,
		"attempt", j.Attempts+1,
	)

	handler, err := e.registry.Resolve(j.Type)
	if err != nil {
		// No handler is a deterministic failure; charge it like one.
		return e.routeFailure(ctx, j, err)
	}

	effect, handlerErr := handler.Handle(ctx, j)

	if e.Hooks.MidExecute != nil {
		e.Hooks.MidExecute(ctx, j)
	}

	if handlerErr != nil {
		return e.routeFailure(ctx, j, handlerErr)
	}

	// The handler may have run longer than the lease. Re-fence before any
	// state mutation.
	if err := e.store.Fence(ctx, e.run, j.ID, j.FencingToken); err != nil {
		return e.fenceOutcome(j, err)
	}

	if err := e.applier.MarkSucceeded(ctx, j, effect); err != nil {
		return e.fenceOutcome(j, err)
	}

	if e.Hooks.AfterCommit != nil {
		e.Hooks.AfterCommit(ctx, j)
	}
	return OutcomeSucceeded, nil
}

// fenceOutcome absorbs fencing rejections and propagates everything else.
func (e *Executor) fenceOutcome(j *Job, err error) (Outcome, error) {
	if !IsFencingRejection(err) {
		return OutcomeStale, err
	}
	e.met.StaleWritesBlocked.Inc()
	e.log.Warnw("stale_write_blocked",
		"job_id", j.ID.String(),
		"fencing_token", j.FencingToken,
		"reason", StaleReason(err),
	)
	return OutcomeStale, nil
}

func (e *Executor) routeFailure(ctx context.Context, j *Job, handlerErr error) (Outcome, error) {
	disposition, err := e.policy.OnHandlerFailure(ctx, e.run, j, handlerErr)
	if err != nil {
		return OutcomeRequeued, err
	}
	switch disposition {
	case DispositionRequeued:
		return OutcomeRequeued, nil
	case DispositionExhausted:
		return OutcomeExhausted, nil
	default:
		return OutcomeLost, nil
	}
}
