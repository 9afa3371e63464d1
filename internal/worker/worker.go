package worker

import (
	"context"
	"errors"
	"time"

	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/internal/retry"
	"github.com/faultline-io/faultline/internal/timeutil"
)

// Waiter is the idle strategy between claim attempts. The store poll is the
// correctness baseline; a notify stream only makes the wait end earlier.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration)
}

type sleepWaiter struct{ clock timeutil.Clock }

func (w sleepWaiter) Wait(ctx context.Context, timeout time.Duration) {
	_ = w.clock.Sleep(ctx, timeout)
}

// Loop is one claim-execute-apply cycle runner. A worker process runs one or
// more Loops; they share nothing but the connection pool.
type Loop struct {
	claimer  *jobs.Claimer
	executor *jobs.Executor
	run      pg.Runner
	clock    timeutil.Clock
	harness  *Harness
	waiter   Waiter

	claimSleep    time.Duration
	maxLoops      int
	exitOnSuccess bool
	exitOnStale   bool

	log *logger.Logger
	met *metrics.Set
}

type LoopConfig struct {
	ClaimSleep    time.Duration
	MaxLoops      int
	ExitOnSuccess bool
	ExitOnStale   bool
}

func NewLoop(claimer *jobs.Claimer, executor *jobs.Executor, run pg.Runner, clock timeutil.Clock, harness *Harness, waiter Waiter, cfg LoopConfig, log *logger.Logger, met *metrics.Set) *Loop {
	if waiter == nil {
		waiter = sleepWaiter{clock: clock}
	}
	return &Loop{
		claimer:       claimer,
		executor:      executor,
		run:           run,
		clock:         clock,
		harness:       harness,
		waiter:        waiter,
		claimSleep:    cfg.ClaimSleep,
		maxLoops:      cfg.MaxLoops,
		exitOnSuccess: cfg.ExitOnSuccess,
		exitOnStale:   cfg.ExitOnStale,
		log:           log,
		met:           met,
	}
}

// Run cycles claim -> execute -> apply -> sleep until ctx is cancelled or a
// harness exit condition fires. Transient store errors back off and retry;
// everything the executor absorbed (fencing, handler failures) just moves
// the loop on to the next claim.
func (l *Loop) Run(ctx context.Context) error {
	loops := 0
	for {
		if err := ctx.Err(); err != nil {
			l.exitEvent("shutdown")
			return err
		}
		if l.maxLoops > 0 && loops >= l.maxLoops {
			l.exitEvent("max_loops")
			return nil
		}
		loops++
		l.met.WorkerHeartbeats.Inc()

		var j *jobs.Job
		err := retry.Store(ctx, func() error {
			var claimErr error
			j, claimErr = l.claimer.Claim(ctx, l.run)
			if claimErr != nil && !pg.IsTransient(claimErr) {
				return retry.Permanent(claimErr)
			}
			return claimErr
		})
		if err != nil {
			if ctx.Err() != nil {
				l.exitEvent("shutdown")
				return ctx.Err()
			}
			l.log.Errorw("claim_failed", "error", err.Error())
			l.waiter.Wait(ctx, l.claimSleep)
			continue
		}

		if j == nil {
			l.waiter.Wait(ctx, l.claimSleep)
			continue
		}

		l.harness.At(ctx, "after_lease_acquire", j)

		outcome, err := l.executor.Execute(ctx, j)
		if err != nil {
			l.log.Errorw("execution_error", "job_id", j.ID.String(), "error", err.Error())
			if errors.Is(err, jobs.ErrInvariantViolation) {
				l.exitEvent("invariant_violation")
				return err
			}
			l.waiter.Wait(ctx, l.claimSleep)
			continue
		}

		switch outcome {
		case jobs.OutcomeSucceeded:
			if l.exitOnSuccess {
				l.exitEvent("success")
				return nil
			}
		case jobs.OutcomeStale:
			if l.exitOnStale {
				l.exitEvent("stale")
				return nil
			}
		}
	}
}

func (l *Loop) exitEvent(reason string) {
	l.log.Infow("worker_exit", "reason", reason, "worker_id", l.claimer.WorkerID())
}
