package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/faultline-io/faultline/internal/config"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/migrate"
	pg "github.com/faultline-io/faultline/internal/postgres"
	"github.com/faultline-io/faultline/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init("faultline-migrate", cfg.Env)
	defer log.SafeSync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := pg.Open(ctx, pg.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalw("store_unreachable", "error", err.Error())
	}
	defer client.Close()

	n, err := migrate.Apply(ctx, client, migrations.FS, log)
	if err != nil {
		log.Fatalw("migration_failed", "applied", n, "error", err.Error())
	}
}
