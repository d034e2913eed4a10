// Package ingest loads the fatal overdose table from the live API, the SQL
// warehouse or the offline snapshot, plus the map boundaries and the data
// dictionary that accompany it.
package ingest

import (
	"context"
	"errors"

	"datastory/pkg/domain"
)

// ErrNoData is returned when a source yields no usable records.
var ErrNoData = errors.New("no data")

// Batch is what one source produced for a load.
type Batch struct {
	Records       []domain.Record
	Dropped       int
	OutOfCoverage int
	// Location names where the rows came from (URL, blob key, database).
	Location string
}

// Source produces the records for one load attempt.
type Source interface {
	Kind() domain.Source
	Load(ctx context.Context) (Batch, error)
}
