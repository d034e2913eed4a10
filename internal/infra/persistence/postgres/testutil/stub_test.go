package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_, err := conn.ExecContext(ctx, "INSERT INTO overdose_records (case_id, sex) VALUES ($1, $2)", []driver.NamedValue{
		{Value: "c-1"},
		{Value: "Male"},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	rows, err := conn.QueryContext(ctx, "SELECT case_id, sex FROM overdose_records ORDER BY case_id", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "c-1" || dest[1] != "Male" {
		t.Fatalf("unexpected row %v", dest)
	}
	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE overdose_records", nil); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(conn.Tables["overdose_records"]) != 0 {
		t.Fatalf("expected empty table after truncate")
	}
}

func TestStubDBArgMismatch(t *testing.T) {
	_, conn := NewStubDB()
	if _, err := conn.ExecContext(context.Background(), "INSERT INTO t (a, b) VALUES ($1, $2)", []driver.NamedValue{{Value: 1}}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
