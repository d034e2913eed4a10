package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"datastory/internal/observability"
	"datastory/pkg/domain"
)

// Recorder receives load outcomes.
type Recorder interface {
	observability.MetricsRecorder
	TableLoaded(source string, records int, fallback bool)
}

// Loader builds the Table once per process: the primary source first, then
// the offline snapshot. It never retries beyond that single fallback.
type Loader struct {
	Primary    Source
	Fallback   Source
	Name       string
	DetailsURL string
	Logger     zerolog.Logger
	Metrics    Recorder
	Now        func() time.Time
}

// Load returns the table or an error wrapping ErrNoData and both causes.
func (l *Loader) Load(ctx context.Context) (*domain.Table, error) {
	metrics := l.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	if l.Primary == nil && l.Fallback == nil {
		return nil, fmt.Errorf("%w: no sources configured", ErrNoData)
	}
	start := time.Now()

	var primaryErr error
	if l.Primary != nil {
		batch, err := l.attempt(ctx, l.Primary)
		if err == nil {
			table := l.table(batch, l.Primary.Kind(), false, "", now())
			metrics.TableLoaded(string(l.Primary.Kind()), table.Len(), false)
			metrics.Observe(ctx, "load", true, time.Since(start))
			return table, nil
		}
		primaryErr = fmt.Errorf("%s source: %w", l.Primary.Kind(), err)
		l.Logger.Warn().Err(err).Str("source", string(l.Primary.Kind())).Msg("primary source failed, falling back to snapshot")
	}
	if l.Fallback == nil {
		metrics.Observe(ctx, "load", false, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrNoData, primaryErr)
	}
	batch, err := l.attempt(ctx, l.Fallback)
	if err != nil {
		metrics.Observe(ctx, "load", false, time.Since(start))
		l.Logger.Error().Err(err).Str("source", string(l.Fallback.Kind())).Msg("fallback source failed")
		return nil, fmt.Errorf("%w: %w", ErrNoData, errors.Join(primaryErr, fmt.Errorf("%s source: %w", l.Fallback.Kind(), err)))
	}
	fallback := l.Primary != nil
	notice := ""
	if fallback {
		notice = fmt.Sprintf("Live %s source unavailable; showing the offline snapshot (%s).", l.Primary.Kind(), batch.Location)
	}
	table := l.table(batch, l.Fallback.Kind(), fallback, notice, now())
	metrics.TableLoaded(string(l.Fallback.Kind()), table.Len(), fallback)
	metrics.Observe(ctx, "load", true, time.Since(start))
	return table, nil
}

func (l *Loader) attempt(ctx context.Context, src Source) (Batch, error) {
	batch, err := src.Load(ctx)
	if err != nil {
		return Batch{}, err
	}
	if len(batch.Records) == 0 {
		return Batch{}, fmt.Errorf("%w: %d rows dropped, %d out of coverage", ErrNoData, batch.Dropped, batch.OutOfCoverage)
	}
	return batch, nil
}

func (l *Loader) table(batch Batch, kind domain.Source, fallback bool, notice string, at time.Time) *domain.Table {
	meta := domain.Meta{
		Source:        l.Name,
		SourceURL:     l.DetailsURL,
		LoadedFrom:    kind,
		LoadedAt:      at.UTC(),
		Fallback:      fallback,
		Notice:        notice,
		Rows:          len(batch.Records),
		Dropped:       batch.Dropped,
		OutOfCoverage: batch.OutOfCoverage,
	}
	for i, r := range batch.Records {
		if i == 0 || r.Year < meta.YearMin {
			meta.YearMin = r.Year
		}
		if i == 0 || r.Year > meta.YearMax {
			meta.YearMax = r.Year
		}
	}
	table := domain.NewTable(meta, batch.Records)
	l.Logger.Info().
		Str("source", string(kind)).
		Str("location", batch.Location).
		Int("rows", table.Len()).
		Int("dropped", batch.Dropped).
		Int("out_of_coverage", batch.OutOfCoverage).
		Bool("fallback", fallback).
		Msg("table loaded")
	return table
}
