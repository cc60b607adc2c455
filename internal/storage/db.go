// Package storage persists the pipeline's aggregates behind database/sql.
// Two drivers are wired: modernc's pure-Go SQLite for development and
// tests, and pgx's stdlib adapter for Postgres. Queries are written with
// `?` placeholders and rebound per dialect; timestamps are stored as
// RFC 3339 text and booleans as 0/1 integers so one schema serves both
// engines.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	// Database drivers registered for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver selects the backing engine.
type Driver string

const (
	// DriverSQLite is the pure-Go SQLite driver, the default for
	// development and tests.
	DriverSQLite Driver = "sqlite"

	// DriverPostgres is the pgx stdlib adapter.
	DriverPostgres Driver = "postgres"
)

// Default pool tuning.
const (
	// DefaultSQLiteDSN keeps the whole store in memory.
	DefaultSQLiteDSN = "file::memory:?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	// DefaultMaxOpenConns bounds the Postgres pool.
	DefaultMaxOpenConns = 8

	// DefaultConnMaxLifetime recycles pooled connections.
	DefaultConnMaxLifetime = 30 * time.Minute
)

// Config selects and tunes the backing store.
type Config struct {
	Driver          Driver
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the in-memory SQLite tuning.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             DefaultSQLiteDSN,
		MaxOpenConns:    DefaultMaxOpenConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
	}
}

// DB wraps the sql pool with dialect-aware helpers.
type DB struct {
	sql    *sql.DB
	driver Driver
	logger *slog.Logger
}

// Open connects, applies pool settings, runs pending migrations, and
// returns the ready store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	driverName, resolveErr := sqlDriverName(cfg.Driver)
	if resolveErr != nil {
		return nil, resolveErr
	}

	dsn := cfg.DSN
	if dsn == "" && cfg.Driver == DriverSQLite {
		dsn = DefaultSQLiteDSN
	}

	pool, openErr := sql.Open(driverName, dsn)
	if openErr != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, openErr)
	}

	applyPoolSettings(pool, cfg)

	if pingErr := pool.PingContext(ctx); pingErr != nil {
		pool.Close()

		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, pingErr)
	}

	db := &DB{sql: pool, driver: cfg.Driver, logger: logger}

	if migrateErr := db.migrate(ctx); migrateErr != nil {
		pool.Close()

		return nil, migrateErr
	}

	logger.InfoContext(ctx, "store ready",
		slog.String("driver", string(cfg.Driver)),
	)

	return db, nil
}

// sqlDriverName maps the configured driver onto its database/sql name.
func sqlDriverName(d Driver) (string, error) {
	switch d {
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", d)
	}
}

// applyPoolSettings tunes the pool. SQLite is held to a single connection:
// the in-memory database lives on the connection, and a single writer
// avoids busy errors under concurrent handlers.
func applyPoolSettings(pool *sql.DB, cfg Config) {
	if cfg.Driver == DriverSQLite {
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)

		return
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenConns
	}

	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen)

	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = DefaultConnMaxLifetime
	}

	pool.SetConnMaxLifetime(lifetime)
}

// Close releases the pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies connectivity, for readiness checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// rebind rewrites `?` placeholders to the dialect's positional form.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder

	b.Grow(len(query) + 8)

	n := 0

	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)

			continue
		}

		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

// exec runs a statement with dialect-rebound placeholders.
func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.sql.ExecContext(ctx, db.rebind(query), args...)
}

// queryRow runs a single-row query with dialect-rebound placeholders.
func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.sql.QueryRowContext(ctx, db.rebind(query), args...)
}

// query runs a multi-row query with dialect-rebound placeholders.
func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.sql.QueryContext(ctx, db.rebind(query), args...)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, beginErr := db.sql.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("begin tx: %w", beginErr)
	}

	tx := &Tx{sql: sqlTx, db: db}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()

			panic(r)
		}
	}()

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("rollback failed",
				slog.String("error", rbErr.Error()),
			)
		}

		return fnErr
	}

	if commitErr := sqlTx.Commit(); commitErr != nil {
		return fmt.Errorf("commit tx: %w", commitErr)
	}

	return nil
}

// Tx is an open transaction with dialect-aware helpers.
type Tx struct {
	sql *sql.Tx
	db  *DB
}

// exec runs a statement inside the transaction.
func (tx *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.sql.ExecContext(ctx, tx.db.rebind(query), args...)
}

// queryRow runs a single-row query inside the transaction.
func (tx *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.sql.QueryRowContext(ctx, tx.db.rebind(query), args...)
}

// query runs a multi-row query inside the transaction.
func (tx *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.sql.QueryContext(ctx, tx.db.rebind(query), args...)
}

// IsUniqueViolation reports whether err is a unique-constraint failure on
// either engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// Timestamp helpers: stored as RFC 3339 nano text in UTC.

// fmtTime renders a timestamp for storage.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fmtTimePtr renders an optional timestamp, nil staying NULL.
func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return fmtTime(*t)
}

// parseTime reads a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, parseErr := time.Parse(time.RFC3339Nano, s)
	if parseErr != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, parseErr)
	}

	return t, nil
}

// parseTimePtr reads an optional stored timestamp.
func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	t, parseErr := parseTime(s.String)
	if parseErr != nil {
		return nil, parseErr
	}

	return &t, nil
}

// boolToInt renders a boolean for storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// marshalJSON renders v as compact JSON text.
func marshalJSON(v any) (string, error) {
	raw, marshalErr := json.Marshal(v)
	if marshalErr != nil {
		return "", fmt.Errorf("marshal json column: %w", marshalErr)
	}

	return string(raw), nil
}

// unmarshalJSON reads JSON column text into out. Empty text is left as the
// zero value.
func unmarshalJSON(raw string, out any) error {
	if raw == "" {
		return nil
	}

	if unmarshalErr := json.Unmarshal([]byte(raw), out); unmarshalErr != nil {
		return fmt.Errorf("unmarshal json column: %w", unmarshalErr)
	}

	return nil
}
