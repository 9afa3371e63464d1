package jobs

import (
	"context"
	"time"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

const defaultBackoffCap = 30 * time.Second

// Disposition is what a handler failure did to the job.
type Disposition int

const (
	// DispositionRequeued: budget remained, job re-queued with backoff.
	DispositionRequeued Disposition = iota
	// DispositionExhausted: budget ran out, job dead-lettered.
	DispositionExhausted
	// DispositionLost: the token-gated update no-opped; another worker
	// already reclaimed the job.
	DispositionLost
)

// RetryPolicy decides what a handler failure does to the job: re-queue with
// backoff while budget remains, dead-letter otherwise. Fencing rejections
// never reach it; they are not handler failures.
type RetryPolicy struct {
	store *Store
	cap   time.Duration

	log *logger.Logger
	met *metrics.Set
}

func NewRetryPolicy(store *Store, log *logger.Logger, met *metrics.Set) *RetryPolicy {
	return &RetryPolicy{store: store, cap: defaultBackoffCap, log: log, met: met}
}

// Delay computes min(cap, 2^max(1, newAttempts)) seconds: 2, 4, 8, 16, 30,
// 30... The floor at 2^1 holds even for the first retry.
func (p *RetryPolicy) Delay(newAttempts int32) time.Duration {
	exp := newAttempts
	if exp < 1 {
		exp = 1
	}
	d := time.Second
	for i := int32(0); i < exp; i++ {
		d *= 2
		if d >= p.cap {
			return p.cap
		}
	}
	return d
}

// OnHandlerFailure charges the attempt and routes the job. Both branches are
// single token-gated statements: if a concurrent reclaim already took the
// job they no-op and the failure is reported as lost.
func (p *RetryPolicy) OnHandlerFailure(ctx context.Context, run pg.Runner, j *Job, handlerErr error) (Disposition, error) {
	newAttempts := j.Attempts + 1
	msg := handlerErr.Error()

	if newAttempts < j.MaxAttempts {
		requeued, err := p.store.RequeueForRetry(ctx, run, j.ID, j.FencingToken, newAttempts, msg, p.Delay(newAttempts))
		if err != nil {
			return DispositionRequeued, err
		}
		if !requeued {
			return DispositionLost, nil
		}
		p.met.JobsRetried.Inc()
		p.log.Infow("job_requeued",
			"job_id", j.ID.String(),
			"attempts", newAttempts,
			"delay", p.Delay(newAttempts).String(),
			"error", msg,
		)
		return DispositionRequeued, nil
	}

	exhausted, err := p.store.MarkExhausted(ctx, run, j.ID, j.FencingToken, newAttempts, msg)
	if err != nil {
		return DispositionExhausted, err
	}
	if !exhausted {
		return DispositionLost, nil
	}
	p.met.JobsFailed.Inc()
	p.log.Warnw("job_failed",
		"job_id", j.ID.String(),
		"attempts", newAttempts,
		"error", msg,
	)
	return DispositionExhausted, nil
}
