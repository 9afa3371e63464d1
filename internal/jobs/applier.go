package jobs

import (
	"context"
	"fmt"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// TxBeginner runs a function inside a committed-or-rolled-back transaction.
// *postgres.Client satisfies it; tests substitute a stub.
type TxBeginner interface {
	WithTx(ctx context.Context, fn func(run pg.Runner) error) error
}

// Applier binds the side-effect to the caller's lease generation and
// converges the job to succeeded.
//
// The commit happens in two steps. First, one transaction locks the job row,
// re-checks the fencing token, and inserts the ledger entry; committing that
// transaction is the point of no return for the side-effect. Second, a
// token-gated statement converges the job state. A crash between the two
// leaves the ledger committed and the job unconverged; the reconciler owns
// that window, which is why I7 is stated as eventual.
type Applier struct {
	tx    TxBeginner
	run   pg.Runner
	store *Store

	// BeforeConverge runs between the ledger commit and the state update.
	// Harness crash-injection point; nil in production.
	BeforeConverge func(ctx context.Context, j *Job)

	log *logger.Logger
	met *metrics.Set
}

func NewApplier(tx TxBeginner, run pg.Runner, store *Store, log *logger.Logger, met *metrics.Set) *Applier {
	return &Applier{tx: tx, run: run, store: store, log: log, met: met}
}

// MarkSucceeded is idempotent per lease generation: applying it twice for
// the same (job, token) equals applying it once.
func (a *Applier) MarkSucceeded(ctx context.Context, j *Job, effect Effect) error {
	err := a.tx.WithTx(ctx, func(run pg.Runner) error {
		stored, err := a.store.LockToken(ctx, run, j.ID)
		if err != nil {
			return err
		}
		if stored != j.FencingToken {
			return fmt.Errorf("%w: job %s holds token %d, caller has %d",
				ErrStaleToken, j.ID, stored, j.FencingToken)
		}
		return a.store.InsertLedgerEntry(ctx, run, LedgerEntry{
			JobID:        j.ID,
			FencingToken: j.FencingToken,
			AccountID:    effect.AccountID,
			Delta:        effect.Delta,
		})
	})
	if err != nil {
		return err
	}

	if a.BeforeConverge != nil {
		a.BeforeConverge(ctx, j)
	}

	converged, err := a.store.ConvergeSucceeded(ctx, a.run, j.ID, j.FencingToken)
	if err != nil {
		return err
	}
	if !converged {
		// A reclaim slipped in after the ledger commit. The ledger row is the
		// commitment record; the reconciler converges the job from it.
		a.log.Warnw("apply_not_converged",
			"job_id", j.ID.String(),
			"fencing_token", j.FencingToken,
		)
		return nil
	}

	a.met.JobsSucceeded.Inc()
	a.log.Infow("job_succeeded",
		"job_id", j.ID.String(),
		"fencing_token", j.FencingToken,
		"account_id", effect.AccountID,
		"delta", effect.Delta,
	)
	return nil
}
