package ingest

import (
	"context"
	"errors"
	"fmt"

	"datastory/internal/blob"
)

// Dictionary is the companion data dictionary describing the source columns.
type Dictionary struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// LoadDictionary reads the dictionary CSV. A missing object yields an empty
// dictionary rather than an error.
func LoadDictionary(ctx context.Context, store blob.Store, key string) (Dictionary, error) {
	if store == nil || key == "" {
		return Dictionary{}, nil
	}
	_, rc, err := store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return Dictionary{}, nil
	}
	if err != nil {
		return Dictionary{}, fmt.Errorf("open dictionary %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	header, rows, err := DecodeCSV(rc)
	if errors.Is(err, ErrNoData) {
		return Dictionary{}, nil
	}
	if err != nil {
		return Dictionary{}, fmt.Errorf("decode dictionary %s: %w", key, err)
	}
	d := Dictionary{Columns: header, Rows: make([]map[string]string, 0, len(rows))}
	for _, r := range rows {
		d.Rows = append(d.Rows, map[string]string(r))
	}
	return d, nil
}
