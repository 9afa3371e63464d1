package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/faultline-io/faultline/internal/logger"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/internal/timeutil"
)

const barrierPollInterval = 100 * time.Millisecond

// Barrier coordinates test workers through the store, so multi-process race
// tests need no shared memory or extra infrastructure.
type Barrier struct {
	run   pg.Runner
	clock timeutil.Clock
	log   *logger.Logger
}

func NewBarrier(run pg.Runner, clock timeutil.Clock, log *logger.Logger) *Barrier {
	return &Barrier{run: run, clock: clock, log: log}
}

// Open marks the named barrier as passed. Re-opening is a no-op.
func (b *Barrier) Open(ctx context.Context, name string) error {
	_, err := b.run.Exec(ctx, `
		INSERT INTO barriers (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return err
	}
	b.log.Infow("barrier_open", "barrier", name)
	return nil
}

// Wait polls until the named barrier opens or the timeout passes.
func (b *Barrier) Wait(ctx context.Context, name string, timeout time.Duration) error {
	b.log.Infow("barrier_wait", "barrier", name, "timeout", timeout.String())

	deadline := b.clock.Now().Add(timeout)
	for {
		var exists bool
		err := b.run.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM barriers WHERE name = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if !b.clock.Now().Before(deadline) {
			return fmt.Errorf("worker: barrier %q did not open within %s", name, timeout)
		}
		if err := b.clock.Sleep(ctx, barrierPollInterval); err != nil {
			return err
		}
	}
}
