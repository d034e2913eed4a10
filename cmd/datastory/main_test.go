package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"datastory/internal/adapters/dashboard"
	"datastory/pkg/domain"
)

const snapshotCSV = `case_id,death_year,sex,age,incident_zip,combined_od1,combined_od2
A1,2019,M,34,15213,Fentanyl,Cocaine
A2,2020,F,51,15206-1234,Heroin,
A3,2021,U,,nan,Alcohol,
A4,2007,M,40,15213,Fentanyl,
A5,,M,40,15213,Fentanyl,
`

const boundariesJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"ZCTA5CE10":"15213"},"geometry":null},
{"type":"Feature","properties":{"ZCTA5CE10":"15206"},"geometry":null}]}`

const dictionaryCSV = "field,description\ncase_year,Year of death\n"

const ckanPayload = `{"success":true,"result":{"fields":[{"id":"_id"},{"id":"case_year"},{"id":"sex"},{"id":"incident_zip"},{"id":"combined_od1"}],
"records":[
{"_id":1,"case_year":2022,"sex":"M","incident_zip":"15213","combined_od1":"Fentanyl"},
{"_id":2,"case_year":2023,"sex":"F","incident_zip":15206,"combined_od1":"Cocaine"}]}}`

type fixture struct {
	dir    string
	config string
}

func newFixture(t *testing.T, apiURL, primary string) fixture {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"Fatal-Accidental-Overdoses.csv":         snapshotCSV,
		"pa_pennsylvania_zip_codes_geo.min.json": boundariesJSON,
		"data-dictionary.csv":                    dictionaryCSV,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	cfg := fmt.Sprintf(`[source]
primary = %q
api_url = %q
api_timeout = "2s"
boundaries_url = ""

[blob]
driver = "fs"
fs_root = %q

[warehouse]
driver = "sqlite"
sqlite_path = %q

[log]
level = "debug"
`, primary, apiURL, dir, filepath.Join(dir, "warehouse.db"))
	path := filepath.Join(dir, "datastory.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return fixture{dir: dir, config: path}
}

func failingAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func workingAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, ckanPayload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func summaryJSON(t *testing.T, config string) summary {
	t.Helper()
	out, err := execute(t, "summary", "--json", "--config", config)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var s summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	return s
}

func TestSummaryFallsBackToSnapshot(t *testing.T) {
	fx := newFixture(t, failingAPI(t).URL, "api")
	s := summaryJSON(t, fx.config)
	if !s.Meta.Fallback || s.Meta.LoadedFrom != domain.SourceSnapshot {
		t.Fatalf("expected snapshot fallback, got %+v", s.Meta)
	}
	if !strings.Contains(s.Meta.Notice, "offline snapshot") {
		t.Fatalf("expected fallback notice, got %q", s.Meta.Notice)
	}
	if s.Meta.Rows != 3 || s.Meta.Dropped != 1 || s.Meta.OutOfCoverage != 1 {
		t.Fatalf("unexpected row accounting %+v", s.Meta)
	}
	if s.DefaultFilter.YearMin != 2019 || s.DefaultFilter.YearMax != 2021 || s.KPIs.Records != 3 {
		t.Fatalf("unexpected default view %+v %+v", s.DefaultFilter, s.KPIs)
	}
}

func TestSummaryFromAPI(t *testing.T) {
	fx := newFixture(t, workingAPI(t).URL, "api")
	s := summaryJSON(t, fx.config)
	if s.Meta.Fallback || s.Meta.LoadedFrom != domain.SourceAPI {
		t.Fatalf("expected live api load, got %+v", s.Meta)
	}
	if s.Meta.YearMin != 2022 || s.Meta.YearMax != 2023 || s.KPIs.Records != 2 {
		t.Fatalf("unexpected coverage %+v", s.Meta)
	}
	if len(s.ZIPs) != 2 {
		t.Fatalf("expected both ZIPs, got %+v", s.ZIPs)
	}
}

func TestSummaryText(t *testing.T) {
	fx := newFixture(t, failingAPI(t).URL, "api")
	out, err := execute(t, "summary", "--config", fx.config)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{"loaded from snapshot", "notice:", "top combinations:", "15213"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryMissingConfig(t *testing.T) {
	if _, err := execute(t, "summary", "--config", filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestSnapshotPublishes(t *testing.T) {
	fx := newFixture(t, workingAPI(t).URL, "api")
	out, err := execute(t, "snapshot", "--config", fx.config)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.HasPrefix(out, "published snapshots/") {
		t.Fatalf("unexpected output %q", out)
	}
	entries, err := os.ReadDir(filepath.Join(fx.dir, "snapshots"))
	if err != nil {
		t.Fatalf("read snapshots: %v", err)
	}
	csvFiles := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".csv") {
			csvFiles++
		}
	}
	if csvFiles != 1 {
		t.Fatalf("expected one published snapshot, got %d", csvFiles)
	}
}

func TestSnapshotRejectsUnknownSource(t *testing.T) {
	fx := newFixture(t, workingAPI(t).URL, "api")
	_, err := execute(t, "snapshot", "--source", "foo", "--config", fx.config)
	if err == nil || !strings.Contains(err.Error(), `unknown --source "foo"`) {
		t.Fatalf("expected unknown source error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "snapshots")); !os.IsNotExist(err) {
		t.Fatalf("rejected source must not publish a snapshot, stat err %v", err)
	}
}

func TestWarehouseLoadThenRead(t *testing.T) {
	api := workingAPI(t)
	fx := newFixture(t, api.URL, "api")
	out, err := execute(t, "warehouse", "load", "--config", fx.config)
	if err != nil {
		t.Fatalf("warehouse load: %v", err)
	}
	if !strings.Contains(out, "loaded 2 records from api") {
		t.Fatalf("unexpected output %q", out)
	}

	whConfig := strings.Replace(readFile(t, fx.config), `primary = "api"`, `primary = "warehouse"`, 1)
	path := filepath.Join(fx.dir, "warehouse.toml")
	if err := os.WriteFile(path, []byte(whConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	s := summaryJSON(t, path)
	if s.Meta.LoadedFrom != domain.SourceWarehouse || s.Meta.Fallback || s.KPIs.Records != 2 {
		t.Fatalf("expected warehouse load, got %+v", s.Meta)
	}
}

func TestUnopenableWarehouseFallsBackWithNotice(t *testing.T) {
	fx := newFixture(t, failingAPI(t).URL, "warehouse")
	// A regular file as parent directory makes the sqlite open fail.
	blocked := filepath.Join(fx.dir, "Fatal-Accidental-Overdoses.csv", "warehouse.db")
	cfg := strings.Replace(readFile(t, fx.config), filepath.Join(fx.dir, "warehouse.db"), blocked, 1)
	if err := os.WriteFile(fx.config, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := summaryJSON(t, fx.config)
	if !s.Meta.Fallback || s.Meta.LoadedFrom != domain.SourceSnapshot {
		t.Fatalf("expected snapshot fallback, got %+v", s.Meta)
	}
	if !strings.Contains(s.Meta.Notice, "warehouse source unavailable") {
		t.Fatalf("expected warehouse notice, got %q", s.Meta.Notice)
	}

	a, err := newApp(t.Context(), &rootOptions{configPath: fx.config, logLevel: "error"}, io.Discard)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()
	if _, err := a.loadTable(t.Context()); err != nil {
		t.Fatalf("load table: %v", err)
	}
	rec := httptest.NewRecorder()
	a.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "datastory_source_fallbacks_total 1") {
		t.Fatalf("expected fallback counter, got:\n%s", rec.Body.String())
	}
}

func TestAppHandlerWiring(t *testing.T) {
	fx := newFixture(t, failingAPI(t).URL, "api")
	a, err := newApp(t.Context(), &rootOptions{configPath: fx.config, logLevel: "error"}, io.Discard)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()
	table, err := a.loadTable(t.Context())
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	h, err := a.handler(t.Context(), table)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if h.Boundaries == nil || len(h.Boundaries.ZIPs) != 2 {
		t.Fatalf("expected local boundaries, got %+v", h.Boundaries)
	}
	if len(h.Dictionary.Rows) != 1 {
		t.Fatalf("expected dictionary rows, got %+v", h.Dictionary)
	}

	mux := dashboard.NewMux(h, a.metrics.Handler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/charts/zips", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "datastory_source_fallbacks_total 1") {
		t.Fatalf("expected fallback counter in metrics")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := newFixture(t, failingAPI(t).URL, "api")
	a, err := newApp(t.Context(), &rootOptions{configPath: fx.config}, io.Discard)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	srv := dashboard.NewServer("127.0.0.1:0", http.NotFoundHandler())
	done := make(chan error, 1)
	go func() { done <- run(ctx, a, srv) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}
