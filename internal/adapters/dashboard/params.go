package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"datastory/internal/charts"
	"datastory/internal/export"
	"datastory/pkg/domain"
)

// ErrInvalidParam marks malformed query parameters.
var ErrInvalidParam = errors.New("invalid parameter")

// seriesOptions lists every yearly series a client may request.
var seriesOptions = append(append([]string(nil), charts.DefaultSeries...), string(domain.SexUnknown))

// query is a parsed dashboard request.
type query struct {
	Spec   domain.FilterSpec
	Series []string
	Format string
}

// parseQuery reads year_min, year_max, sex, zip, series and format. Missing
// years are left zero so the engine fills them from the table coverage.
func parseQuery(values url.Values) (query, error) {
	var q query
	var err error
	if q.Spec.YearMin, err = yearParam(values, "year_min"); err != nil {
		return query{}, err
	}
	if q.Spec.YearMax, err = yearParam(values, "year_max"); err != nil {
		return query{}, err
	}
	if q.Spec.Sexes, err = sexParam(values["sex"]); err != nil {
		return query{}, err
	}
	q.Spec.ZIP = strings.TrimSpace(values.Get("zip"))
	if q.Series, err = seriesParam(values["series"]); err != nil {
		return query{}, err
	}
	q.Format = strings.ToLower(strings.TrimSpace(values.Get("format")))
	switch q.Format {
	case "":
		q.Format = export.FormatJSON
	case export.FormatJSON, export.FormatCSV, export.FormatXLSX:
	default:
		return query{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidParam, q.Format)
	}
	return q, nil
}

func yearParam(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a year, got %q", ErrInvalidParam, key, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidParam, key)
	}
	return n, nil
}

// sexParam accepts repeated and comma separated values. "all" clears the
// restriction.
func sexParam(raw []string) ([]domain.Sex, error) {
	var out []domain.Sex
	for _, v := range splitList(raw) {
		if strings.EqualFold(v, "all") {
			return nil, nil
		}
		s, err := domain.ParseSexStrict(v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func seriesParam(raw []string) ([]string, error) {
	var out []string
	for _, v := range splitList(raw) {
		name, ok := canonicalSeries(v)
		if !ok {
			return nil, fmt.Errorf("%w: unknown series %q", ErrInvalidParam, v)
		}
		out = append(out, name)
	}
	return out, nil
}

func canonicalSeries(v string) (string, bool) {
	for _, name := range seriesOptions {
		if strings.EqualFold(name, v) {
			return name, true
		}
	}
	return "", false
}

func splitList(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// statusFor maps filter and parameter errors to 400, anything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParam),
		errors.Is(err, domain.ErrInvertedRange),
		errors.Is(err, domain.ErrInvalidZIP),
		errors.Is(err, domain.ErrInvalidSex):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
