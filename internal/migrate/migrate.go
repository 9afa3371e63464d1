// Package migrate applies ordered SQL files exactly once, tracked in
// schema_migrations by filename.
package migrate

import (
	"context"
	"io/fs"
	"sort"
	"strings"

	"github.com/faultline-io/faultline/internal/logger"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Client is the slice of the postgres client this package needs.
type Client interface {
	RunnerFromPool() pg.Runner
	WithTx(ctx context.Context, fn func(run pg.Runner) error) error
}

// Apply runs every pending migration inside its own transaction and records
// it. Returns the number applied. Already-applied files are skipped by name.
func Apply(ctx context.Context, client Client, fsys fs.FS, log *logger.Logger) (int, error) {
	run := client.RunnerFromPool()

	_, err := run.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, err
	}

	applied, err := appliedSet(ctx, run)
	if err != nil {
		return 0, err
	}

	files, err := listSQL(fsys)
	if err != nil {
		return 0, err
	}

	appliedNow := 0
	for _, name := range files {
		if applied[name] {
			continue
		}

		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return appliedNow, err
		}

		log.Infow("migration_applying", "filename", name)
		err = client.WithTx(ctx, func(txRun pg.Runner) error {
			if _, err := txRun.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := txRun.Exec(ctx,
				`INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return appliedNow, err
		}
		appliedNow++
	}

	log.Infow("migrations_done", "applied", appliedNow, "total", len(files))
	return appliedNow, nil
}

func appliedSet(ctx context.Context, run pg.Runner) (map[string]bool, error) {
	rows, err := run.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func listSQL(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
