// Package sqlite serves case records from a local SQLite warehouse file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"datastory/internal/infra/persistence/sqlrecords"
	"datastory/pkg/domain"
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
	Clear:       `DELETE FROM overdose_records`,
	Placeholder: func(int) string { return "?" },
}

// Store reads and reloads the overdose_records table in a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "datastory.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlrecords.EnsureSchema(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Records returns every stored case ordered by year then case id.
func (s *Store) Records(ctx context.Context) ([]domain.Record, error) {
	return sqlrecords.Load(ctx, s.db)
}

// Replace swaps the table content for records in one transaction.
func (s *Store) Replace(ctx context.Context, records []domain.Record) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
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
