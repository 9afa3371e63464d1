package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Claimer elects eligible jobs for one worker identity.
type Claimer struct {
	store    *Store
	workerID string
	lease    time.Duration
	// onlyJobID restricts claiming to a single job. Harness use.
	onlyJobID *uuid.UUID

	log *logger.Logger
	met *metrics.Set
}

func NewClaimer(store *Store, workerID string, lease time.Duration, log *logger.Logger, met *metrics.Set) *Claimer {
	return &Claimer{store: store, workerID: workerID, lease: lease, log: log, met: met}
}

// RestrictTo pins the claimer to one job id.
func (c *Claimer) RestrictTo(id uuid.UUID) { c.onlyJobID = &id }

func (c *Claimer) WorkerID() string { return c.workerID }

// Claim installs a new lease generation on one eligible job, or returns nil
// when the queue is empty. The statement is atomic; concurrent claimers skip
// locked rows and therefore never collide on the same job.
func (c *Claimer) Claim(ctx context.Context, run pg.Runner) (*Job, error) {
	j, err := c.store.Claim(ctx, run, c.workerID, c.lease, c.onlyJobID)
	if err != nil || j == nil {
		return nil, err
	}

	c.met.JobsClaimed.Inc()
	c.log.Infow("lease_acquired",
		"job_id", j.ID.String(),
		"worker_id", c.workerID,
		"fencing_token", j.FencingToken,
		"attempts", j.Attempts,
	)
	return j, nil
}
