package ingest

import (
	"context"
	"fmt"

	"datastory/internal/config"
	"datastory/internal/infra/persistence/memory"
	"datastory/internal/infra/persistence/postgres"
	"datastory/internal/infra/persistence/sqlite"
	"datastory/pkg/domain"
)

// Warehouse is a SQL store of case records.
type Warehouse interface {
	Records(ctx context.Context) ([]domain.Record, error)
	Replace(ctx context.Context, records []domain.Record) error
	Close() error
}

// OpenWarehouse selects the SQL backend from configuration and returns it with
// a printable location that never includes credentials.
func OpenWarehouse(ctx context.Context, cfg config.WarehouseConfig) (Warehouse, string, error) {
	switch cfg.Driver {
	case "", "sqlite":
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return store, "sqlite:" + store.Path(), nil
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, "", err
		}
		return store, "postgres", nil
	case "memory":
		return memory.NewStore(), "memory", nil
	default:
		return nil, "", fmt.Errorf("unknown warehouse driver %s", cfg.Driver)
	}
}

// WarehouseSource loads records from a Warehouse. OpenErr records a failure
// to open the store so the loader reports it like any other source failure.
type WarehouseSource struct {
	Store    interface{ Records(context.Context) ([]domain.Record, error) }
	Location string
	MinYear  int
	OpenErr  error
}

// Kind implements Source.
func (s *WarehouseSource) Kind() domain.Source { return domain.SourceWarehouse }

// Load implements Source. Rows before MinYear are counted as out of coverage.
func (s *WarehouseSource) Load(ctx context.Context) (Batch, error) {
	if s.OpenErr != nil {
		return Batch{}, fmt.Errorf("open warehouse: %w", s.OpenErr)
	}
	if s.Store == nil {
		return Batch{}, fmt.Errorf("warehouse not configured")
	}
	records, err := s.Store.Records(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("read warehouse: %w", err)
	}
	batch := Batch{Records: records[:0], Location: s.Location}
	for _, r := range records {
		if r.Year < s.MinYear {
			batch.OutOfCoverage++
			continue
		}
		batch.Records = append(batch.Records, r)
	}
	return batch, nil
}
