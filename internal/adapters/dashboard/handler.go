// Package dashboard serves the overdose dashboard page and its JSON, image
// and download API over HTTP.
package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"datastory/internal/charts"
	"datastory/internal/export"
	"datastory/internal/ingest"
	"datastory/internal/observability"
	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const (
	pathMeta       = "/api/v1/meta"
	pathDashboard  = "/api/v1/dashboard"
	pathBoundaries = "/api/v1/boundaries"
	pathDictionary = "/api/v1/dictionary"
	pathCharts     = "/api/v1/charts/"
)

// Route labels used for logs and metrics.
const (
	routePage       = "page"
	routeMeta       = "meta"
	routeDashboard  = "dashboard"
	routeChart      = "chart"
	routeBoundaries = "boundaries"
	routeDictionary = "dictionary"
	routeNotFound   = "not_found"
)

// Recorder receives per-request and per-operation metrics.
type Recorder interface {
	observability.MetricsRecorder
	Request(route string, code int)
}

// Handler provides HTTP access to the dashboard.
type Handler struct {
	Engine     *pipeline.Engine
	Boundaries *ingest.Boundaries
	Dictionary ingest.Dictionary
	Metrics    Recorder
	Logger     zerolog.Logger
}

// NewHandler constructs a dashboard handler over engine.
func NewHandler(engine *pipeline.Engine, logger zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Logger: logger, Metrics: observability.NopMetrics{}}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	route, status := h.dispatch(w, r)

	if h.Metrics != nil {
		h.Metrics.Request(route, status)
	}
	event := h.Logger.Info()
	if status >= http.StatusInternalServerError {
		event = h.Logger.Error()
	}
	event.Str("request_id", id).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("route", route).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("request served")
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) (string, int) {
	if h.Engine == nil {
		return routeNotFound, writeError(w, http.StatusInternalServerError, "dashboard engine not configured")
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	route := routeFor(path)
	if route == routeNotFound {
		return route, writeError(w, http.StatusNotFound, "endpoint not found")
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		return route, writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}

	switch route {
	case routePage:
		return route, h.handlePage(w, r)
	case routeMeta:
		return route, h.handleMeta(w)
	case routeDashboard:
		return route, h.handleDashboard(w, r)
	case routeChart:
		return route, h.handleChart(w, r, strings.TrimPrefix(path, pathCharts))
	case routeBoundaries:
		return route, h.handleBoundaries(w)
	default:
		return route, writeJSON(w, http.StatusOK, map[string]any{"dictionary": h.Dictionary})
	}
}

func routeFor(path string) string {
	switch {
	case path == "":
		return routePage
	case path == pathMeta:
		return routeMeta
	case path == pathDashboard:
		return routeDashboard
	case path == pathBoundaries:
		return routeBoundaries
	case path == pathDictionary:
		return routeDictionary
	case strings.HasPrefix(path, pathCharts):
		return routeChart
	}
	return routeNotFound
}

type filterOptions struct {
	YearMin         int          `json:"year_min"`
	YearMax         int          `json:"year_max"`
	Sexes           []domain.Sex `json:"sexes"`
	ZIPs            []string     `json:"zips"`
	Series          []string     `json:"series"`
	Charts          []string     `json:"charts"`
	Formats         []string     `json:"formats"`
	TopCombinations int          `json:"top_combinations"`
}

type metaResponse struct {
	Meta          domain.Meta       `json:"meta"`
	Schema        []domain.Column   `json:"schema"`
	Options       filterOptions     `json:"options"`
	DefaultFilter domain.FilterSpec `json:"default_filter"`
	Boundaries    bool              `json:"boundaries"`
}

func (h *Handler) handleMeta(w http.ResponseWriter) int {
	table := h.Engine.Table()
	meta := table.Meta()
	return writeJSON(w, http.StatusOK, metaResponse{
		Meta:   meta,
		Schema: domain.Schema,
		Options: filterOptions{
			YearMin:         meta.YearMin,
			YearMax:         meta.YearMax,
			Sexes:           table.Sexes(),
			ZIPs:            table.ZIPs(),
			Series:          seriesOptions,
			Charts:          pipeline.Kinds,
			Formats:         []string{export.FormatJSON, export.FormatCSV, export.FormatXLSX},
			TopCombinations: h.Engine.TopCombinations(),
		},
		DefaultFilter: table.DefaultFilter(),
		Boundaries:    h.Boundaries != nil,
	})
}

type dashboardResponse struct {
	Spec    domain.FilterSpec             `json:"spec"`
	Notices []string                      `json:"notices,omitempty"`
	KPIs    pipeline.KPIs                 `json:"kpis"`
	Trend   *pipeline.Trend               `json:"trend,omitempty"`
	Charts  map[string]charts.ChartConfig `json:"charts"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) int {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		return h.fail(w, routeDashboard, err)
	}
	d, err := h.Engine.Render(r.Context(), q.Spec)
	if err != nil {
		return h.fail(w, routeDashboard, err)
	}
	resp := dashboardResponse{
		Spec:    d.Spec,
		Notices: h.notices(d),
		KPIs:    d.KPIs,
		Trend:   d.Yearly.Trend,
		Charts:  make(map[string]charts.ChartConfig, len(pipeline.Kinds)),
	}
	for _, kind := range pipeline.Kinds {
		cfg, _ := charts.Build(kind, d, q.Series)
		resp.Charts[kind] = cfg
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request, name string) int {
	kind, image := strings.CutSuffix(name, ".png")
	if !slices.Contains(pipeline.Kinds, kind) {
		return writeError(w, http.StatusNotFound, "chart not found")
	}
	if image && kind != pipeline.KindYearly && kind != pipeline.KindSubstances {
		return writeError(w, http.StatusNotFound, fmt.Sprintf("no image rendering for chart %s", kind))
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		return h.fail(w, routeChart, err)
	}
	d, err := h.Engine.Render(r.Context(), q.Spec)
	if err != nil {
		return h.fail(w, routeChart, err)
	}
	cfg, _ := charts.Build(kind, d, q.Series)

	if image {
		var buf bytes.Buffer
		if err := charts.RenderPNG(&buf, cfg); err != nil {
			return h.fail(w, routeChart, err)
		}
		return writeBody(w, "image/png", "", buf.Bytes())
	}

	if q.Format == export.FormatJSON {
		return writeJSON(w, http.StatusOK, map[string]any{
			"spec":    d.Spec,
			"notices": h.notices(d),
			"chart":   cfg,
		})
	}
	sheet, _ := export.FromDashboard(kind, d)
	var buf bytes.Buffer
	if q.Format == export.FormatCSV {
		err = export.WriteCSV(&buf, sheet)
	} else {
		err = export.WriteXLSX(&buf, sheet)
	}
	if err != nil {
		return h.fail(w, routeChart, err)
	}
	filename := fmt.Sprintf("overdoses_%s_%d-%d.%s", kind, d.Spec.YearMin, d.Spec.YearMax, q.Format)
	return writeBody(w, export.ContentTypes[q.Format], filename, buf.Bytes())
}

func (h *Handler) handleBoundaries(w http.ResponseWriter) int {
	if h.Boundaries == nil || len(h.Boundaries.GeoJSON) == 0 {
		return writeError(w, http.StatusNotFound, "zip boundaries unavailable")
	}
	return writeBody(w, "application/geo+json", "", h.Boundaries.GeoJSON)
}

// notices puts the table level notice (such as the snapshot fallback) ahead
// of the filter adjustments.
func (h *Handler) notices(d pipeline.Dashboard) []string {
	var out []string
	if notice := h.Engine.Table().Meta().Notice; notice != "" {
		out = append(out, notice)
	}
	return append(out, d.Notices...)
}

func (h *Handler) fail(w http.ResponseWriter, route string, err error) int {
	status := statusFor(err)
	if status == http.StatusBadRequest {
		h.Logger.Debug().Err(err).Str("route", route).Msg("request rejected")
		return writeError(w, status, err.Error())
	}
	h.Logger.Error().Err(err).Str("route", route).Msg("request failed")
	return writeError(w, status, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
	return status
}

func writeError(w http.ResponseWriter, status int, message string) int {
	return writeJSON(w, status, map[string]any{"error": message})
}

// writeBody sends a fully buffered payload, as an attachment when filename is set.
func writeBody(w http.ResponseWriter, contentType, filename string, body []byte) int {
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return http.StatusOK
}
