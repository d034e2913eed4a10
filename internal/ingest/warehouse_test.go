package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"datastory/internal/config"
	"datastory/internal/ingest"
	"datastory/pkg/domain"
)

func TestWarehouseSourceOverSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.db")
	wh, location, err := ingest.OpenWarehouse(ctx, config.WarehouseConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = wh.Close() }()
	if !strings.HasPrefix(location, "sqlite:") {
		t.Fatalf("unexpected location %s", location)
	}
	records := []domain.Record{
		domain.NewRecord("old", 2005, domain.SexMale, "", nil),
		domain.NewRecord("new", 2020, domain.SexFemale, "15213", []string{"Heroin"}),
	}
	if err := wh.Replace(ctx, records); err != nil {
		t.Fatalf("replace: %v", err)
	}
	batch, err := (&ingest.WarehouseSource{Store: wh, Location: location, MinYear: 2008}).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(batch.Records) != 1 || batch.OutOfCoverage != 1 || batch.Records[0].CaseID != "new" {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestOpenWarehouseUnknownDriver(t *testing.T) {
	if _, _, err := ingest.OpenWarehouse(context.Background(), config.WarehouseConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWarehouseSourceOverMemory(t *testing.T) {
	ctx := context.Background()
	wh, location, err := ingest.OpenWarehouse(ctx, config.WarehouseConfig{Driver: "memory"})
	if err != nil || location != "memory" {
		t.Fatalf("open: %v %s", err, location)
	}
	src := &ingest.WarehouseSource{Store: wh, Location: location, MinYear: 2008}
	if batch, err := src.Load(ctx); err != nil || len(batch.Records) != 0 {
		t.Fatalf("expected empty batch, got %+v %v", batch, err)
	}
	if err := wh.Replace(ctx, []domain.Record{domain.NewRecord("m", 2012, domain.SexMale, "15213", []string{"Alcohol"})}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	batch, err := src.Load(ctx)
	if err != nil || len(batch.Records) != 1 || batch.Location != "memory" {
		t.Fatalf("unexpected batch %+v %v", batch, err)
	}
}

func TestWarehouseSourceReportsOpenError(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := (&ingest.WarehouseSource{Location: "postgres", OpenErr: cause}).Load(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected open error, got %v", err)
	}
}
