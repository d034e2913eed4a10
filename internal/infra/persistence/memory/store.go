// Package memory provides an in-memory record warehouse used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"datastory/pkg/domain"
)

// Store keeps case records in process memory. Reads and writes clone records
// so callers never share slices with the store.
type Store struct {
	mu      sync.RWMutex
	records []domain.Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Records returns every stored case ordered by year then case id.
func (s *Store) Records(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records), nil
}

// Replace swaps the store content for records. Duplicate case ids are rejected
// and leave the previous content untouched.
func (s *Store) Replace(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := cloneRecords(records)
	sort.Slice(next, func(i, j int) bool {
		if next[i].Year != next[j].Year {
			return next[i].Year < next[j].Year
		}
		return next[i].CaseID < next[j].CaseID
	})
	seen := make(map[string]struct{}, len(next))
	for _, rec := range next {
		if _, dup := seen[rec.CaseID]; dup {
			return fmt.Errorf("duplicate case id %s", rec.CaseID)
		}
		seen[rec.CaseID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneRecords(in []domain.Record) []domain.Record {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Record, len(in))
	for i, rec := range in {
		out[i] = cloneRecord(rec)
	}
	return out
}

func cloneRecord(r domain.Record) domain.Record {
	if r.Age != nil {
		age := *r.Age
		r.Age = &age
	}
	r.Substances = slices.Clone(r.Substances)
	r.Combination = slices.Clone(r.Combination)
	return r
}
