package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"datastory/internal/adapters/dashboard"
	"datastory/internal/blob"
	"datastory/internal/config"
	"datastory/internal/ingest"
	"datastory/internal/observability"
	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

// app holds the process wide dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	store   blob.Store
	closers []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := observability.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		store:   store,
	}, nil
}

// Close releases warehouse connections opened by the app.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loader builds the source chain for primary, with the offline snapshot as fallback.
func (a *app) loader(ctx context.Context, primary string) *ingest.Loader {
	src := a.cfg.Source
	l := &ingest.Loader{
		Fallback:   &ingest.SnapshotSource{Store: a.store, Key: a.cfg.Blob.SnapshotKey, MinYear: src.MinYear},
		Name:       src.Name,
		DetailsURL: src.DetailsURL,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
	switch primary {
	case config.PrimaryWarehouse:
		wh, location, err := ingest.OpenWarehouse(ctx, a.cfg.Warehouse)
		if err != nil {
			l.Primary = &ingest.WarehouseSource{Location: a.cfg.Warehouse.Driver, MinYear: src.MinYear, OpenErr: err}
			return l
		}
		a.closers = append(a.closers, wh)
		l.Primary = &ingest.WarehouseSource{Store: wh, Location: location, MinYear: src.MinYear}
	default:
		l.Primary = ingest.NewAPISource(src.APIURL, src.APITimeout.Duration, src.MinYear)
	}
	return l
}

// loadTable runs the configured source chain once.
func (a *app) loadTable(ctx context.Context) (*domain.Table, error) {
	return a.loader(ctx, a.cfg.Source.Primary).Load(ctx)
}

// handler loads the supporting documents and assembles the dashboard over table.
// Missing boundaries or dictionary degrade the page rather than failing it.
func (a *app) handler(ctx context.Context, table *domain.Table) (*dashboard.Handler, error) {
	boundaries, err := (&ingest.BoundaryLoader{
		URL:     a.cfg.Source.BoundariesURL,
		Store:   a.store,
		Key:     a.cfg.Blob.BoundariesKey,
		Logger:  a.logger,
		Timeout: a.cfg.Source.BoundariesTimeout.Duration,
	}).Load(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("zip boundaries unavailable, map disabled")
		boundaries = nil
	}
	dict, err := ingest.LoadDictionary(ctx, a.store, a.cfg.Blob.DictionaryKey)
	if err != nil {
		a.logger.Warn().Err(err).Msg("data dictionary unavailable")
	}
	engine, err := pipeline.NewEngine(table, pipeline.Options{
		TopCombinations: a.cfg.Pipeline.TopCombinations,
		CacheSize:       a.cfg.Pipeline.CacheSize,
		ValidZIPs:       boundaries.Valid(),
		Metrics:         a.metrics,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, err
	}
	h := dashboard.NewHandler(engine, a.logger)
	h.Boundaries = boundaries
	h.Dictionary = dict
	h.Metrics = a.metrics
	return h, nil
}
