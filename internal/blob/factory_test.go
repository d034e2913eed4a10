package blob_test

import (
	"context"
	"testing"

	"datastory/internal/blob"
	"datastory/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := blob.Open(ctx, config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != blob.DriverFilesystem {
		t.Fatalf("fs: %v", err)
	}
	mem, err := blob.Open(ctx, config.BlobConfig{Driver: "memory"})
	if err != nil || mem.Driver() != blob.DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	if _, err := blob.Open(ctx, config.BlobConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := blob.Open(ctx, config.BlobConfig{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
