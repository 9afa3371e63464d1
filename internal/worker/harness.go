package worker

import (
	"context"
	"os"

	"github.com/faultline-io/faultline/internal/config"
	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/timeutil"
)

// Harness drives the test-only hooks: barriers, crash injection, and
// artificial work delays. With an empty config every method is a no-op, so
// production wiring pays nothing for it.
type Harness struct {
	cfg     config.Harness
	barrier *Barrier
	clock   timeutil.Clock
	log     *logger.Logger

	// exit defaults to os.Exit; tests substitute it.
	exit func(code int)
}

func NewHarness(cfg config.Harness, barrier *Barrier, clock timeutil.Clock, log *logger.Logger) *Harness {
	return &Harness{cfg: cfg, barrier: barrier, clock: clock, log: log, exit: os.Exit}
}

// At runs the configured actions for one protocol point, in a fixed order:
// open the barrier first (so a crashing worker still unblocks its peer),
// then wait, then crash.
func (h *Harness) At(ctx context.Context, point string, j *jobs.Job) {
	if h == nil {
		return
	}
	if h.cfg.BarrierOpen == point && h.barrier != nil {
		if err := h.barrier.Open(ctx, point); err != nil {
			h.log.Errorw("barrier_open_failed", "barrier", point, "error", err.Error())
		}
	}
	if h.cfg.BarrierWait == point && h.barrier != nil {
		if err := h.barrier.Wait(ctx, point, h.cfg.BarrierTimeout); err != nil {
			h.log.Errorw("barrier_wait_failed", "barrier", point, "error", err.Error())
		}
	}
	if h.cfg.CrashAt == point {
		h.crash(point, j)
	}
}

func (h *Harness) crash(point string, j *jobs.Job) {
	fields := []any{"crash_at", point}
	if j != nil {
		fields = append(fields, "job_id", j.ID.String(), "fencing_token", j.FencingToken)
	}
	h.log.Warnw("crash_injected", fields...)
	h.log.SafeSync()
	h.exit(1)
}

// WorkSleep simulates a handler that runs for a while.
func (h *Harness) WorkSleep(ctx context.Context) {
	if h == nil || h.cfg.WorkSleep <= 0 {
		return
	}
	_ = h.clock.Sleep(ctx, h.cfg.WorkSleep)
}

// Wire attaches the harness to the executor's and applier's hook points.
func (h *Harness) Wire(e *jobs.Executor, a *jobs.Applier) {
	if h == nil {
		return
	}
	e.Hooks.MidExecute = func(ctx context.Context, j *jobs.Job) {
		h.At(ctx, "mid_execute", j)
		h.WorkSleep(ctx)
	}
	e.Hooks.AfterCommit = func(ctx context.Context, j *jobs.Job) {
		h.At(ctx, "after_commit", j)
	}
	a.BeforeConverge = func(ctx context.Context, j *jobs.Job) {
		h.At(ctx, "before_commit", j)
	}
}
