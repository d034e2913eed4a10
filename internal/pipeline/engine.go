package pipeline

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"datastory/internal/observability"
	"datastory/pkg/domain"
)

// Aggregate kinds, also used as chart names on the HTTP surface.
const (
	KindYearly       = "yearly"
	KindSubstances   = "substances"
	KindCombinations = "combinations"
	KindZIPs         = "zips"
	kindView         = "view"
)

// Kinds lists the aggregate kinds in dashboard order.
var Kinds = []string{KindYearly, KindSubstances, KindCombinations, KindZIPs}

const (
	defaultTopCombinations = 15
	defaultCacheSize       = 256
)

// Dashboard is one complete render pass over a FilterSpec.
type Dashboard struct {
	Spec         domain.FilterSpec  `json:"spec"`
	Notices      []string           `json:"notices,omitempty"`
	KPIs         KPIs               `json:"kpis"`
	Yearly       YearlySeries       `json:"yearly"`
	Substances   []SubstanceCount   `json:"substances"`
	Combinations CombinationSummary `json:"combinations"`
	ZIPs         ZIPSummary         `json:"zips"`
}

// Options configures an Engine.
type Options struct {
	TopCombinations int
	CacheSize       int
	// ValidZIPs restricts the ZIP aggregate to mappable codes; nil disables it.
	ValidZIPs map[string]struct{}
	Metrics   observability.MetricsRecorder
	Logger    zerolog.Logger
}

type cacheKey struct {
	spec string
	kind string
}

// Engine runs the filter and aggregate pipeline over one read-only table and
// memoizes results per normalized FilterSpec. It is safe for concurrent use.
type Engine struct {
	table   *domain.Table
	topN    int
	valid   map[string]struct{}
	cache   *lru.Cache[cacheKey, any]
	metrics observability.MetricsRecorder
	logger  zerolog.Logger
}

// NewEngine wraps table.
func NewEngine(table *domain.Table, opts Options) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("pipeline: nil table")
	}
	if opts.TopCombinations <= 0 {
		opts.TopCombinations = defaultTopCombinations
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	cache, err := lru.New[cacheKey, any](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline cache: %w", err)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Engine{
		table:   table,
		topN:    opts.TopCombinations,
		valid:   opts.ValidZIPs,
		cache:   cache,
		metrics: metrics,
		logger:  opts.Logger,
	}, nil
}

// Table returns the table the engine serves.
func (e *Engine) Table() *domain.Table { return e.table }

// TopCombinations returns the configured top-N.
func (e *Engine) TopCombinations() int { return e.topN }

// ValidZIPs returns the boundary ZIP set, nil when unrestricted.
func (e *Engine) ValidZIPs() map[string]struct{} { return e.valid }

// Prepare normalizes spec against the table coverage and validates it.
func (e *Engine) Prepare(spec domain.FilterSpec) (domain.FilterSpec, []string, error) {
	normalized, notices := spec.Normalize(e.table.Meta())
	if err := normalized.Validate(); err != nil {
		return domain.FilterSpec{}, nil, err
	}
	return normalized, notices, nil
}

// View prepares spec and returns the filtered view.
func (e *Engine) View(ctx context.Context, spec domain.FilterSpec) (View, error) {
	start := time.Now()
	prepared, notices, err := e.Prepare(spec)
	if err != nil {
		e.metrics.Observe(ctx, "view", false, time.Since(start))
		return View{}, err
	}
	v := e.view(prepared)
	v.Notices = notices
	e.metrics.Observe(ctx, "view", true, time.Since(start))
	return v, nil
}

// Render runs one full pass: prepare, filter, then all four aggregates.
func (e *Engine) Render(ctx context.Context, spec domain.FilterSpec) (Dashboard, error) {
	start := time.Now()
	prepared, notices, err := e.Prepare(spec)
	if err != nil {
		e.metrics.Observe(ctx, "render", false, time.Since(start))
		e.logger.Debug().Err(err).Msg("filter rejected")
		return Dashboard{}, err
	}
	v := e.view(prepared)
	d := Dashboard{
		Spec:         prepared,
		Notices:      notices,
		KPIs:         v.KPIs,
		Yearly:       e.Yearly(v),
		Substances:   e.Substances(v),
		Combinations: e.Combinations(v),
		ZIPs:         e.ZIPs(v),
	}
	e.metrics.Observe(ctx, "render", true, time.Since(start))
	e.logger.Debug().Str("spec", prepared.Key()).Int("records", v.Len()).Dur("took", time.Since(start)).Msg("dashboard rendered")
	return d, nil
}

// Yearly returns the memoized yearly aggregate of v.
func (e *Engine) Yearly(v View) YearlySeries {
	return memo(e, v.Spec, KindYearly, func() YearlySeries { return Yearly(v) })
}

// Substances returns the memoized composition aggregate of v.
func (e *Engine) Substances(v View) []SubstanceCount {
	return memo(e, v.Spec, KindSubstances, func() []SubstanceCount { return Substances(v) })
}

// Combinations returns the memoized combination aggregate of v.
func (e *Engine) Combinations(v View) CombinationSummary {
	return memo(e, v.Spec, KindCombinations, func() CombinationSummary { return Combinations(v, e.topN) })
}

// ZIPs returns the memoized ZIP aggregate of v.
func (e *Engine) ZIPs(v View) ZIPSummary {
	return memo(e, v.Spec, KindZIPs, func() ZIPSummary { return ZIPs(v, e.valid) })
}

func (e *Engine) view(spec domain.FilterSpec) View {
	return memo(e, spec, kindView, func() View { return Apply(e.table, spec) })
}

// memo caches results by (spec, kind). Cached values are shared between
// callers and must be treated as read-only.
func memo[T any](e *Engine, spec domain.FilterSpec, kind string, compute func() T) T {
	key := cacheKey{spec: spec.Key(), kind: kind}
	if cached, ok := e.cache.Get(key); ok {
		if v, ok := cached.(T); ok {
			return v
		}
	}
	v := compute()
	e.cache.Add(key, v)
	return v
}
