package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/faultline-io/faultline/internal/config"
	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	"github.com/faultline-io/faultline/internal/notify"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/internal/timeutil"
	"github.com/faultline-io/faultline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init("faultline-worker", cfg.Env)
	defer log.SafeSync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The skewed clock only shifts the worker's own Now() readings; sleeps
	// run at the base rate. Nothing it produces reaches an eligibility or
	// fencing decision; that
	// is exactly what CLOCK_SKEW_MS exists to demonstrate.
	var clock timeutil.Clock = timeutil.UTCClock{}
	if cfg.Harness.ClockSkew != 0 {
		clock = timeutil.SkewedClock{Base: timeutil.UTCClock{}, Offset: cfg.Harness.ClockSkew}
	}

	client, err := pg.Open(ctx, pg.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalw("store_unreachable", "error", err.Error())
	}
	defer client.Close()
	run := client.RunnerFromPool()

	var stream *notify.Stream
	if cfg.RedisURL != "" {
		stream, err = notify.NewStream(cfg.RedisURL, cfg.StreamKey, log)
		if err != nil {
			log.Warnw("notify_disabled", "error", err.Error())
			stream = nil
		} else {
			defer stream.Close()
		}
	}

	met := metrics.NewSet()
	store := jobs.NewStore()
	registry := jobs.Builtins()

	g, gctx := errgroup.WithContext(ctx)

	metricsHandler, _ := metrics.NewHandler(metrics.Options{
		Register: met.Register,
		Health: func(ctx context.Context, r *http.Request) error {
			return client.Pool.Ping(ctx)
		},
	})
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	barrier := worker.NewBarrier(run, clock, log)

	for i := 0; i < cfg.WorkerLoops; i++ {
		workerID := jobs.NewWorkerID()
		loopLog := log.With("worker_id", workerID)

		claimer := jobs.NewClaimer(store, workerID, cfg.LeaseDuration, loopLog, met)
		if cfg.Harness.ClaimJobID != "" {
			id, err := uuid.Parse(cfg.Harness.ClaimJobID)
			if err != nil {
				log.Fatalw("bad_claim_job_id", "value", cfg.Harness.ClaimJobID, "error", err.Error())
			}
			claimer.RestrictTo(id)
		}

		applier := jobs.NewApplier(client, run, store, loopLog, met)
		policy := jobs.NewRetryPolicy(store, loopLog, met)
		executor := jobs.NewExecutor(store, run, registry, applier, policy, loopLog, met)

		harness := worker.NewHarness(cfg.Harness, barrier, clock, loopLog)
		harness.Wire(executor, applier)

		var waiter worker.Waiter
		if stream != nil {
			waiter = stream
		}

		loop := worker.NewLoop(claimer, executor, run, clock, harness, waiter, worker.LoopConfig{
			ClaimSleep:    cfg.ClaimSleep,
			MaxLoops:      cfg.Harness.MaxLoops,
			ExitOnSuccess: cfg.Harness.ExitOnSuccess,
			ExitOnStale:   cfg.Harness.ExitOnStale,
		}, loopLog, met)

		g.Go(func() error {
			err := loop.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// A loop that hit its harness exit condition takes the whole
			// process down so the test runner sees a clean exit.
			stop()
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalw("worker_failed", "error", err.Error())
	}
}
