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

	"github.com/faultline-io/faultline/internal/api"
	"github.com/faultline-io/faultline/internal/config"
	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	"github.com/faultline-io/faultline/internal/notify"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init("faultline-api", cfg.Env)
	defer log.SafeSync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := pg.Open(ctx, pg.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalw("store_unreachable", "error", err.Error())
	}
	defer client.Close()

	var stream *notify.Stream
	if cfg.RedisURL != "" {
		stream, err = notify.NewStream(cfg.RedisURL, cfg.StreamKey, log)
		if err != nil {
			// Advisory only; the workers' store poll still drains the queue.
			log.Warnw("notify_disabled", "error", err.Error())
			stream = nil
		} else {
			defer stream.Close()
		}
	}

	met := metrics.NewSet()
	store := jobs.NewStore()
	submitter := jobs.NewSubmitter(store, cfg.MaxAttemptsDefault, log, met)
	server := api.NewServer(submitter, store, client.RunnerFromPool(), stream, log, met)

	httpServer := &http.Server{
		Addr: cfg.APIAddr,
		Handler: server.Router(func(ctx context.Context, r *http.Request) error {
			return client.Pool.Ping(ctx)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("api_listening", "addr", cfg.APIAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("api_failed", "error", err.Error())
	}
}
