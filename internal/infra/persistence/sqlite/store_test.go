package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"datastory/pkg/domain"
)

func TestStoreReplaceAndRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "warehouse.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	empty, err := store.Records(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty table, got %d %v", len(empty), err)
	}

	age := 33
	a := domain.NewRecord("b-2", 2021, domain.SexFemale, "15212", []string{"Cocaine", "Fentanyl"})
	a.Age = &age
	b := domain.NewRecord("a-1", 2018, domain.SexUnknown, "", []string{"oxycodone"})
	if err := store.Replace(ctx, []domain.Record{a, b}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 2 || got[0].CaseID != "a-1" || got[1].CaseID != "b-2" {
		t.Fatalf("expected year ordering, got %+v", got)
	}
	if got[0].Substances[0] != domain.SubstanceOtherOpioids || got[0].HasZIP() {
		t.Fatalf("unexpected first record %+v", got[0])
	}
	if got[1].Signature() != "Cocaine + Fentanyl" || got[1].Age == nil || *got[1].Age != 33 {
		t.Fatalf("unexpected second record %+v", got[1])
	}

	// A second Replace swaps rather than appends.
	if err := store.Replace(ctx, []domain.Record{b}); err != nil {
		t.Fatalf("Replace again: %v", err)
	}
	got, _ = store.Records(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(got))
	}
}

func TestStoreReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "w.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Replace(ctx, []domain.Record{domain.NewRecord("c", 2020, domain.SexMale, "15213", nil)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_ = store.Close()

	reopened, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Records(ctx)
	if err != nil || len(got) != 1 || got[0].ZIP != "15213" {
		t.Fatalf("unexpected records %+v %v", got, err)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}

func TestReplaceRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "d.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	r := domain.NewRecord("dup", 2020, domain.SexMale, "", nil)
	if err := store.Replace(ctx, []domain.Record{r}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Replace(ctx, []domain.Record{r, r}); err == nil {
		t.Fatalf("expected primary key violation")
	}
	got, _ := store.Records(ctx)
	if len(got) != 1 {
		t.Fatalf("failed replace must roll back, got %d rows", len(got))
	}
}
