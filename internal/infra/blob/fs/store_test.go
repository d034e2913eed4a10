package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datastory/internal/blob/core"
)

func TestStorePutGetHeadList(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	info, err := store.Put(ctx, "snapshots/2024-01-01.csv", bytes.NewReader([]byte("case_year\n2020\n")), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 15 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/2024-01-01.csv", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "snapshots/2024-01-01.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "case_year\n2020\n" || got.ContentType != "text/csv" || got.Metadata["rows"] != "1" {
		t.Fatalf("unexpected object %+v %q", got, body)
	}

	head, err := store.Head(ctx, "snapshots/2024-01-01.csv")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head: %+v %v", head, err)
	}

	list, err := store.List(ctx, "snapshots/")
	if err != nil || len(list) != 1 || list[0].Key != "snapshots/2024-01-01.csv" {
		t.Fatalf("list: %+v %v", list, err)
	}
}

func TestStoreServesFilesWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "data-dictionary.csv"), []byte("field,description\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, rc, err := store.Get(context.Background(), "data-dictionary.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 18 || !strings.HasPrefix(info.ContentType, "text/csv") {
		t.Fatalf("unexpected derived info %+v", info)
	}
	list, err := store.List(context.Background(), "")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
}

func TestStoreMissingAndInvalidKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on head, got %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("key %q: expected error", key)
		}
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}
}
