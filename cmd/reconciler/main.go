package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultline-io/faultline/internal/config"
	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/internal/timeutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init("faultline-reconciler", cfg.Env)
	defer log.SafeSync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := pg.Open(ctx, pg.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalw("store_unreachable", "error", err.Error())
	}
	defer client.Close()

	met := metrics.NewSet()
	rec := jobs.NewReconciler(client, jobs.NewStore(), timeutil.UTCClock{}, cfg.ReconcileBatchSize, cfg.ReconcileSleep, log, met)

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

	g, gctx := errgroup.WithContext(ctx)
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
	g.Go(func() error {
		err := rec.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalw("reconciler_failed", "error", err.Error())
	}
}
