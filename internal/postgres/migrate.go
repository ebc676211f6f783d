package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/paper-piper/Dini/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every embedded migration that schema_migrations does not
// list yet, each in its own transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("error creating schema_migrations table: %w", err)
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("error listing migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(strings.TrimPrefix(file, "migrations/"), ".sql")

		var exists int
		err := p.DB.QueryRowContext(ctx, "SELECT 1 FROM schema_migrations WHERE version = $1", version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("error checking migration %s: %w", version, err)
		}

		content, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("error reading migration %s: %w", file, err)
		}

		if err := p.apply(ctx, version, string(content)); err != nil {
			return err
		}
		logger.Log.Info("migration applied", logger.String("version", version))
	}

	return nil
}

func (p *Postgres) apply(ctx context.Context, version, content string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, content); err != nil {
		rollback(tx)
		return fmt.Errorf("error executing migration %s: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		rollback(tx)
		return fmt.Errorf("error recording migration %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing migration %s: %w", version, err)
	}
	return nil
}
