package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes the business logic for one job type. Handlers must be
// deterministic and side-effect-free; the only durable effect of an attempt
// is the ledger entry the applier commits.
type Handler interface {
	Handle(ctx context.Context, j *Job) (Effect, error)
}

type HandlerFunc func(ctx context.Context, j *Job) (Effect, error)

func (f HandlerFunc) Handle(ctx context.Context, j *Job) (Effect, error) { return f(ctx, j) }

// Registry maps job types to handlers.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]Handler{}}
}

func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	r.m[jobType] = h
	r.mu.Unlock()
}

func (r *Registry) Resolve(jobType string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.m[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, jobType)
	}
	return h, nil
}

// Builtins returns a registry with the stock handlers.
//
//   - noop: succeeds immediately.
//   - flaky: fails the first fail_n_times attempts, then succeeds.
//   - transfer: succeeds with the account_id/delta from the payload.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("noop", HandlerFunc(func(ctx context.Context, j *Job) (Effect, error) {
		return EffectFromJob(j), nil
	}))
	r.Register("flaky", HandlerFunc(func(ctx context.Context, j *Job) (Effect, error) {
		failN, _ := j.Payload.IntField("fail_n_times")
		// Attempts counts completed attempts; this one is attempt Attempts+1.
		attempt := int64(j.Attempts) + 1
		if attempt <= failN {
			return Effect{}, fmt.Errorf("simulated failure on attempt %d of %d", attempt, failN)
		}
		return EffectFromJob(j), nil
	}))
	r.Register("transfer", HandlerFunc(func(ctx context.Context, j *Job) (Effect, error) {
		account, ok := j.Payload.StringField("account_id")
		if !ok || account == "" {
			return Effect{}, fmt.Errorf("transfer payload requires account_id")
		}
		delta, ok := j.Payload.IntField("delta")
		if !ok {
			return Effect{}, fmt.Errorf("transfer payload requires an integral delta")
		}
		return Effect{AccountID: account, Delta: delta}, nil
	}))
	return r
}
