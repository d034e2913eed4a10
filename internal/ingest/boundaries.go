package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"datastory/internal/blob"
)

const maxBoundaryBody = 64 << 20

// zctaProperty names the ZIP code property in the Census ZCTA GeoJSON.
const zctaProperty = "ZCTA5CE10"

// Boundaries is a ZCTA GeoJSON document and the ZIP codes it covers.
type Boundaries struct {
	GeoJSON  json.RawMessage
	ZIPs     map[string]struct{}
	Location string
}

// Valid returns the set of mappable ZIPs, or nil when b is nil.
func (b *Boundaries) Valid() map[string]struct{} {
	if b == nil {
		return nil
	}
	return b.ZIPs
}

// BoundaryLoader fetches the ZCTA boundaries from a URL, falling back to a
// copy in the blob store.
type BoundaryLoader struct {
	URL     string
	Client  *http.Client
	Store   blob.Store
	Key     string
	Logger  zerolog.Logger
	Timeout time.Duration
}

// Load returns the first boundary document that parses. Callers treat an
// error as "serve the map without boundary validation".
func (l *BoundaryLoader) Load(ctx context.Context) (*Boundaries, error) {
	var errs []error
	if l.URL != "" {
		b, err := l.fetch(ctx)
		if err == nil {
			return b, nil
		}
		l.Logger.Warn().Err(err).Str("url", l.URL).Msg("boundary download failed, trying local copy")
		errs = append(errs, err)
	}
	if l.Store != nil && l.Key != "" {
		b, err := l.local(ctx)
		if err == nil {
			return b, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no boundary source configured")
	}
	return nil, errors.Join(errs...)
}

func (l *BoundaryLoader) fetch(ctx context.Context) (*Boundaries, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: l.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch boundaries: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch boundaries: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBoundaryBody))
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	return ParseBoundaries(body, l.URL)
}

func (l *BoundaryLoader) local(ctx context.Context) (*Boundaries, error) {
	_, rc, err := l.Store.Get(ctx, l.Key)
	if err != nil {
		return nil, fmt.Errorf("open boundaries %s: %w", l.Key, err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(io.LimitReader(rc, maxBoundaryBody))
	if err != nil {
		return nil, fmt.Errorf("read boundaries %s: %w", l.Key, err)
	}
	return ParseBoundaries(body, l.Key)
}

// ParseBoundaries decodes a FeatureCollection and collects the zero-padded
// ZCTA codes of its features.
func ParseBoundaries(body []byte, location string) (*Boundaries, error) {
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode boundaries: %w", err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode boundaries: unexpected type %q", doc.Type)
	}
	zips := make(map[string]struct{}, len(doc.Features))
	for _, f := range doc.Features {
		code := stringify(f.Properties[zctaProperty])
		if code == "" {
			continue
		}
		if n, err := strconv.Atoi(code); err == nil && len(code) < 5 {
			code = fmt.Sprintf("%05d", n)
		}
		zips[code] = struct{}{}
	}
	return &Boundaries{GeoJSON: json.RawMessage(body), ZIPs: zips, Location: location}, nil
}
