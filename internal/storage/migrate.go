package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsDir is the embedded path goose reads migrations from.
const migrationsDir = "migrations"

// migrate applies pending schema migrations. The migrations ship embedded
// in the binary, so a fresh store is always brought to the current schema
// without external tooling.
func (db *DB) migrate(ctx context.Context) error {
	dialect, dialectErr := gooseDialect(db.driver)
	if dialectErr != nil {
		return dialectErr
	}

	sub, subErr := fs.Sub(migrationsFS, migrationsDir)
	if subErr != nil {
		return fmt.Errorf("open embedded migrations: %w", subErr)
	}

	provider, providerErr := goose.NewProvider(dialect, db.sql, sub)
	if providerErr != nil {
		return fmt.Errorf("create migration provider: %w", providerErr)
	}

	results, upErr := provider.Up(ctx)
	if upErr != nil {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	if len(results) > 0 {
		db.logger.InfoContext(ctx, "schema migrated",
			slog.Int("applied", len(results)),
		)
	}

	return nil
}

// gooseDialect maps the configured driver onto goose's dialect name.
func gooseDialect(d Driver) (goose.Dialect, error) {
	switch d {
	case DriverSQLite:
		return goose.DialectSQLite3, nil
	case DriverPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("no migration dialect for driver %q", d)
	}
}
