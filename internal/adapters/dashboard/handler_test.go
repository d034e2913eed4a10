package dashboard_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"datastory/internal/adapters/dashboard"
	"datastory/internal/charts"
	"datastory/internal/ingest"
	"datastory/internal/observability"
	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

const fallbackNotice = "Live WPRDC source unavailable; showing the offline snapshot (data/Fatal-Accidental-Overdoses.csv)."

func fixtureTable() *domain.Table {
	age := 41
	older := domain.NewRecord("4", 2019, domain.SexUnknown, "", []string{"alcohol"})
	older.Age = &age
	records := []domain.Record{
		older,
		domain.NewRecord("1", 2020, domain.SexMale, "15213", []string{"fentanyl"}),
		domain.NewRecord("2", 2020, domain.SexFemale, "15213", []string{"fentanyl", "heroin"}),
		domain.NewRecord("3", 2021, domain.SexMale, "15206", nil),
	}
	return domain.NewTable(domain.Meta{
		YearMin:    2019,
		YearMax:    2021,
		Source:     "WPRDC",
		SourceURL:  "https://example.org/overdoses",
		LoadedFrom: domain.SourceSnapshot,
		Fallback:   true,
		Notice:     fallbackNotice,
		Rows:       4,
	}, records)
}

func setupHandler(t *testing.T) *dashboard.Handler {
	t.Helper()
	engine, err := pipeline.NewEngine(fixtureTable(), pipeline.Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return dashboard.NewHandler(engine, zerolog.Nop())
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

type dashboardBody struct {
	Spec    domain.FilterSpec             `json:"spec"`
	Notices []string                      `json:"notices"`
	KPIs    pipeline.KPIs                 `json:"kpis"`
	Trend   *pipeline.Trend               `json:"trend"`
	Charts  map[string]charts.ChartConfig `json:"charts"`
}

func TestHandlerDashboard(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/dashboard?year_min=2020&year_max=2021&sex=Male&sex=Female&zip=ALL")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", resp.Code, resp.Body.String())
	}
	var body dashboardBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.KPIs.Records != 3 || body.KPIs.YearSpanLabel != "2020–2021" {
		t.Fatalf("unexpected kpis %+v", body.KPIs)
	}
	if body.KPIs.SexLabel != "Female, Male" {
		t.Fatalf("expected explicit sex label, got %q", body.KPIs.SexLabel)
	}
	for _, kind := range pipeline.Kinds {
		if _, ok := body.Charts[kind]; !ok {
			t.Fatalf("missing chart %s", kind)
		}
	}
	if got := body.Charts[pipeline.KindYearly].ChartType; got != charts.TypeLine {
		t.Fatalf("unexpected yearly chart type %q", got)
	}
	if len(body.Notices) == 0 || body.Notices[0] != fallbackNotice {
		t.Fatalf("expected fallback notice first, got %v", body.Notices)
	}
	if body.Trend == nil {
		t.Fatalf("expected trend for a two year range")
	}
}

func TestHandlerDashboardDefaults(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/dashboard")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body dashboardBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Spec.YearMin != 2019 || body.Spec.YearMax != 2021 || body.Spec.ZIP != domain.AllZIPs {
		t.Fatalf("unexpected default spec %+v", body.Spec)
	}
	if body.KPIs.Records != 4 || body.KPIs.SexLabel != "All" {
		t.Fatalf("unexpected kpis %+v", body.KPIs)
	}
}

func TestHandlerSeriesSelection(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/dashboard?series=total,unknown")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body dashboardBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	series := body.Charts[pipeline.KindYearly].Series
	if len(series) != 2 || series[0].Name != pipeline.SeriesTotal || series[1].Name != string(domain.SexUnknown) {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestHandlerRejectsBadParameters(t *testing.T) {
	h := setupHandler(t)
	cases := map[string]string{
		"inverted":   "/api/v1/dashboard?year_min=2021&year_max=2020",
		"year":       "/api/v1/dashboard?year_min=twenty",
		"sex":        "/api/v1/dashboard?sex=X",
		"zip":        "/api/v1/dashboard?zip=152",
		"series":     "/api/v1/dashboard?series=Teen",
		"format":     "/api/v1/charts/yearly?format=pdf",
		"chart year": "/api/v1/charts/zips?year_max=-1",
	}
	for name, target := range cases {
		resp := serve(h, http.MethodGet, target)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
			t.Fatalf("%s: expected error payload, got %s", name, resp.Body.String())
		}
	}
}

func TestHandlerLoneYearBelowCoverage(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/dashboard?year_max=2000")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected empty view, got %d %s", resp.Code, resp.Body.String())
	}
	var body dashboardBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.KPIs.Records != 0 || body.Spec.YearMax != 2000 {
		t.Fatalf("unexpected view %+v %+v", body.Spec, body.KPIs)
	}
	found := false
	for _, n := range body.Notices {
		found = found || strings.Contains(n, "outside the data coverage")
	}
	if !found {
		t.Fatalf("expected coverage notice, got %v", body.Notices)
	}
}

func TestHandlerRoutingErrors(t *testing.T) {
	h := setupHandler(t)
	if resp := serve(h, http.MethodGet, "/api/v1/unknown"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := serve(h, http.MethodGet, "/api/v1/charts/pie"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown chart, got %d", resp.Code)
	}
	if resp := serve(h, http.MethodGet, "/api/v1/charts/combinations.png"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for treemap image, got %d", resp.Code)
	}
	resp := serve(h, http.MethodPost, "/api/v1/dashboard")
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	if allow := resp.Header().Get("Allow"); allow != "GET, HEAD" {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestHandlerNilEngine(t *testing.T) {
	h := &dashboard.Handler{Logger: zerolog.Nop()}
	if resp := serve(h, http.MethodGet, "/api/v1/meta"); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestHandlerMeta(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/meta/")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body struct {
		Meta    domain.Meta `json:"meta"`
		Options struct {
			Sexes           []domain.Sex `json:"sexes"`
			ZIPs            []string     `json:"zips"`
			Series          []string     `json:"series"`
			TopCombinations int          `json:"top_combinations"`
		} `json:"options"`
		DefaultFilter domain.FilterSpec `json:"default_filter"`
		Boundaries    bool              `json:"boundaries"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Meta.Fallback || body.Meta.LoadedFrom != domain.SourceSnapshot {
		t.Fatalf("unexpected meta %+v", body.Meta)
	}
	if len(body.Options.Sexes) != 3 || len(body.Options.ZIPs) != 2 || len(body.Options.Series) != 4 {
		t.Fatalf("unexpected options %+v", body.Options)
	}
	if body.Options.TopCombinations != 15 {
		t.Fatalf("expected default top combinations, got %d", body.Options.TopCombinations)
	}
	if body.DefaultFilter.YearMin != 2019 || body.DefaultFilter.YearMax != 2021 {
		t.Fatalf("unexpected default filter %+v", body.DefaultFilter)
	}
	if body.Boundaries {
		t.Fatalf("expected no boundaries")
	}
}

func TestHandlerChartJSON(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/charts/combinations?year_min=2020&year_max=2021")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body struct {
		Chart charts.ChartConfig `json:"chart"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Chart.ChartType != charts.TypeTreemap || len(body.Chart.Series) != 1 || len(body.Chart.Series[0].Data) != 2 {
		t.Fatalf("unexpected chart %+v", body.Chart)
	}
	if len(body.Chart.Notes) != 1 {
		t.Fatalf("expected a no-substance note, got %v", body.Chart.Notes)
	}
}

func TestHandlerChartCSV(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/charts/yearly?format=csv&year_min=2020&year_max=2021")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); cd != `attachment; filename="overdoses_yearly_2020-2021.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || strings.Join(rows[0], ",") != "year,total,male,female,unknown" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if strings.Join(rows[1], ",") != "2020,2,1,1,0" {
		t.Fatalf("unexpected 2020 row %v", rows[1])
	}
}

func TestHandlerChartXLSX(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/charts/zips?format=xlsx")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("ZIP codes")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "zip" || rows[3][0] != "missing" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestHandlerChartPNG(t *testing.T) {
	h := setupHandler(t)
	resp := serve(h, http.MethodGet, "/api/v1/charts/substances.png")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestHandlerBoundaries(t *testing.T) {
	h := setupHandler(t)
	if resp := serve(h, http.MethodGet, "/api/v1/boundaries"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without boundaries, got %d", resp.Code)
	}
	geo := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"ZCTA5CE10":"15213"},"geometry":null}]}`
	b, err := ingest.ParseBoundaries([]byte(geo), "test")
	if err != nil {
		t.Fatalf("parse boundaries: %v", err)
	}
	h.Boundaries = b
	resp := serve(h, http.MethodGet, "/api/v1/boundaries")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(resp.Body.String(), "15213") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestHandlerDictionary(t *testing.T) {
	h := setupHandler(t)
	h.Dictionary = ingest.Dictionary{
		Columns: []string{"field", "description"},
		Rows:    []map[string]string{{"field": "case_year", "description": "Year of death"}},
	}
	resp := serve(h, http.MethodGet, "/api/v1/dictionary")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body struct {
		Dictionary ingest.Dictionary `json:"dictionary"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Dictionary.Rows) != 1 || body.Dictionary.Rows[0]["field"] != "case_year" {
		t.Fatalf("unexpected dictionary %+v", body.Dictionary)
	}
}

func TestHandlerPage(t *testing.T) {
	h := setupHandler(t)
	h.Dictionary = ingest.Dictionary{
		Columns: []string{"field"},
		Rows:    []map[string]string{{"field": "combined_od1"}},
	}
	resp := serve(h, http.MethodGet, "/")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", resp.Code, resp.Body.String())
	}
	body := resp.Body.String()
	for _, want := range []string{"The Unseen Epidemic", "Fatal Accidental Overdoses in Allegheny County", "offline snapshot", "chart-zips", "combined_od1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestHandlerRequestID(t *testing.T) {
	h := setupHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/meta", nil)
	req.Header.Set(dashboard.RequestIDHeader, "abc-123")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if got := resp.Header().Get(dashboard.RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	resp = serve(h, http.MethodGet, "/api/v1/meta")
	if _, err := uuid.Parse(resp.Header().Get(dashboard.RequestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid, got %q", resp.Header().Get(dashboard.RequestIDHeader))
	}
}

func TestHandlerRecordsMetrics(t *testing.T) {
	h := setupHandler(t)
	metrics := observability.NewMetrics()
	h.Metrics = metrics
	serve(h, http.MethodGet, "/api/v1/meta")
	serve(h, http.MethodGet, "/api/v1/nowhere")

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	routes := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "datastory_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "route" {
					routes[label.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	if routes["meta"] != 1 || routes["not_found"] != 1 {
		t.Fatalf("unexpected request counts %v", routes)
	}
}

func TestMuxHealthAndMetrics(t *testing.T) {
	h := setupHandler(t)
	metrics := observability.NewMetrics()
	h.Metrics = metrics
	mux := dashboard.NewMux(h, metrics.Handler())

	resp := serve(mux, http.MethodGet, "/healthz")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected health status: %d", resp.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["records"] != float64(4) || health["fallback"] != true {
		t.Fatalf("unexpected health %v", health)
	}

	serve(mux, http.MethodGet, "/api/v1/dashboard")
	resp = serve(mux, http.MethodGet, "/metrics")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "datastory_http_requests_total") {
		t.Fatalf("metrics endpoint missing request counter: %d", resp.Code)
	}

	if srv := dashboard.NewServer(":0", mux); srv.ReadHeaderTimeout == 0 || srv.Handler == nil {
		t.Fatalf("server not configured: %+v", srv)
	}
}
