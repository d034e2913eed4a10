// Package postgres serves case records from a Postgres warehouse through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"datastory/internal/infra/persistence/sqlrecords"
	"datastory/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/datastory?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var dialect = sqlrecords.Dialect{
	DDL: `CREATE TABLE IF NOT EXISTS overdose_records (
		case_id TEXT PRIMARY KEY,
		case_year INTEGER NOT NULL,
		sex TEXT NOT NULL,
		age INTEGER,
		zip_code TEXT,
		toxicology TEXT NOT NULL DEFAULT '[]'
	)`,
	Clear:       `TRUNCATE TABLE overdose_records`,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// Store reads and reloads the overdose_records table in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore connects using dsn (falls back to defaultDSN) and ensures the table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlrecords.EnsureSchema(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Records returns every stored case ordered by year then case id.
func (s *Store) Records(ctx context.Context) ([]domain.Record, error) {
	return sqlrecords.Load(ctx, s.db)
}

// Replace swaps the table content for records in one transaction.
func (s *Store) Replace(ctx context.Context, records []domain.Record) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := sqlrecords.Replace(ctx, tx, dialect, records); err != nil {
		return err
	}
	return tx.Commit()
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
