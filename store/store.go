// Package store persists the project plan, the materialized execution
// records, and the approval ledger in Postgres. Every write of the engine
// flows through this package; no other package issues SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"
)

// Store provides transactional access to the core tables.
type Store struct {
	queries
	db     *sqlx.DB
	logger *slog.Logger
}

// Tx exposes the same operations as Store inside one database
// transaction. Row locks taken by LoadPlanLocked are held until the
// transaction commits or rolls back.
type Tx struct {
	queries
	tx *sqlx.Tx
}

// queries carries the shared SQL; sqlx.ExtContext is satisfied by both
// *sqlx.DB and *sqlx.Tx.
type queries struct {
	ext    sqlx.ExtContext
	logger *slog.Logger
}

// Open connects to Postgres using the pgx driver and verifies the
// connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Store{
		queries: queries{ext: db, logger: logger},
		db:      db,
		logger:  logger,
	}, nil
}

// NewWithDB wraps an existing database handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, driverName string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	dbx := sqlx.NewDb(db, driverName)
	return &Store{
		queries: queries{ext: dbx, logger: logger},
		db:      dbx,
		logger:  logger,
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle, for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Tx{queries: queries{ext: tx, logger: s.logger}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// get is sqlx.GetContext with ErrNotFound mapping.
func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q.ext, dest, query, args...)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

func (q *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, query, args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.ext.ExecContext(ctx, query, args...)
	return err
}

// prefixColumns qualifies a column list with a table alias for joins.
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// in expands an IN (?) clause and rebinds it for the active driver.
func (q *queries) in(query string, args ...any) (string, []any, error) {
	expanded, bound, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand query: %w", err)
	}
	return q.ext.Rebind(expanded), bound, nil
}
