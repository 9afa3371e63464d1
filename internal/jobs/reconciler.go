package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/internal/retry"
	"github.com/faultline-io/faultline/internal/timeutil"
)

// Reconciler converges jobs whose ledger entry committed but whose state
// never reached succeeded. It is the only component allowed to converge a
// job without holding its lease: the ledger row is the commitment record of
// exactly one successful apply, so the repair needs no token.
type Reconciler struct {
	tx    TxBeginner
	store *Store
	clock timeutil.Clock

	batchSize int
	interval  time.Duration

	log *logger.Logger
	met *metrics.Set
}

func NewReconciler(tx TxBeginner, store *Store, clock timeutil.Clock, batchSize int, interval time.Duration, log *logger.Logger, met *metrics.Set) *Reconciler {
	return &Reconciler{
		tx:        tx,
		store:     store,
		clock:     clock,
		batchSize: batchSize,
		interval:  interval,
		log:       log,
		met:       met,
	}
}

// ReconcileOnce repairs one batch in one transaction and returns the
// repaired ids. Zero candidates commit nothing and return an empty list.
func (r *Reconciler) ReconcileOnce(ctx context.Context) ([]uuid.UUID, error) {
	var repaired []uuid.UUID
	err := r.tx.WithTx(ctx, func(run pg.Runner) error {
		ids, err := r.store.ReconcileBatch(ctx, run, r.batchSize)
		if err != nil {
			return err
		}
		repaired = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(repaired) > 0 {
		r.met.ReconcilerRepaired.Add(float64(len(repaired)))
		ids := make([]string, 0, len(repaired))
		for _, id := range repaired {
			ids = append(ids, id.String())
		}
		r.log.Infow("reconciler_repaired", "count", len(repaired), "job_ids", ids)
	}
	return repaired, nil
}

// Run loops until ctx is cancelled. Transient store errors back off and
// retry; no state survives restarts because none is needed.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		err := retry.Store(ctx, func() error {
			_, err := r.ReconcileOnce(ctx)
			if err != nil && !pg.IsTransient(err) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Errorw("reconciler_pass_failed", "error", err.Error())
		}

		if err := r.clock.Sleep(ctx, r.interval); err != nil {
			return err
		}
	}
}
