package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"datastory/pkg/domain"
)

const maxAPIBody = 256 << 20

// APISource fetches rows from a CKAN datastore_search endpoint.
type APISource struct {
	URL     string
	Client  *http.Client
	MinYear int
}

// NewAPISource returns a source whose requests are bounded by timeout.
func NewAPISource(url string, timeout time.Duration, minYear int) *APISource {
	return &APISource{URL: url, Client: &http.Client{Timeout: timeout}, MinYear: minYear}
}

// Kind implements Source.
func (s *APISource) Kind() domain.Source { return domain.SourceAPI }

type ckanResponse struct {
	Success *bool `json:"success"`
	Error   any   `json:"error,omitempty"`
	Result  struct {
		Fields []struct {
			ID string `json:"id"`
		} `json:"fields"`
		Records []map[string]any `json:"records"`
	} `json:"result"`
}

// Load implements Source. Transport errors, non-2xx statuses, success=false
// and undecodable payloads are all failures.
func (s *APISource) Load(ctx context.Context) (Batch, error) {
	header, rows, err := s.fetch(ctx)
	if err != nil {
		return Batch{}, err
	}
	res := Tidy(header, rows, s.MinYear)
	return Batch{Records: res.Records, Dropped: res.Dropped, OutOfCoverage: res.OutOfCoverage, Location: s.URL}, nil
}

func (s *APISource) fetch(ctx context.Context) ([]string, []Row, error) {
	if s.URL == "" {
		return nil, nil, fmt.Errorf("api url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("fetch api: unexpected status %s", resp.Status)
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxAPIBody))
	dec.UseNumber()
	var payload ckanResponse
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode api payload: %w", err)
	}
	if payload.Success != nil && !*payload.Success {
		return nil, nil, fmt.Errorf("api reported failure: %v", payload.Error)
	}
	header := make([]string, 0, len(payload.Result.Fields))
	for _, f := range payload.Result.Fields {
		header = append(header, f.ID)
	}
	if len(header) == 0 {
		header = unionKeys(payload.Result.Records)
	}
	rows := make([]Row, 0, len(payload.Result.Records))
	for _, rec := range payload.Result.Records {
		row := make(Row, len(rec))
		for k, v := range rec {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func unionKeys(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
