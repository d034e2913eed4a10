// Package pipeline filters the loaded table and computes the dashboard
// aggregates: yearly counts, substance composition, drug combinations and ZIP
// counts.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"datastory/pkg/domain"
)

// View is the subset of a table selected by a FilterSpec. It holds indices
// into the table rather than copies of the records.
type View struct {
	Spec    domain.FilterSpec `json:"spec"`
	Notices []string          `json:"notices,omitempty"`
	KPIs    KPIs              `json:"kpis"`
	table   *domain.Table
	indices []int
}

// Len returns the number of records in the view.
func (v View) Len() int { return len(v.indices) }

// Record returns the i-th record of the view.
func (v View) Record(i int) domain.Record { return v.table.Record(v.indices[i]) }

// Records copies the view's records out in table order.
func (v View) Records() []domain.Record {
	out := make([]domain.Record, len(v.indices))
	for i, idx := range v.indices {
		out[i] = v.table.Record(idx)
	}
	return out
}

// YearSpan is the first and last year present in a view.
type YearSpan struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// KPIs are the headline numbers shown above the charts.
type KPIs struct {
	Records       int       `json:"records"`
	RecordsLabel  string    `json:"records_label"`
	YearSpan      *YearSpan `json:"year_span,omitempty"`
	YearSpanLabel string    `json:"year_span_label"`
	SexLabel      string    `json:"sex_label"`
	ZIPLabel      string    `json:"zip_label"`
	Description   string    `json:"description"`
	MedianAge     *float64  `json:"median_age,omitempty"`
}

// Apply selects the records matching spec. spec should already be normalized
// and validated; Apply itself never fails.
func Apply(table *domain.Table, spec domain.FilterSpec) View {
	v := View{Spec: spec, table: table}
	for i := 0; i < table.Len(); i++ {
		if spec.Matches(table.Record(i)) {
			v.indices = append(v.indices, i)
		}
	}
	v.KPIs = computeKPIs(table, v)
	return v
}

func computeKPIs(table *domain.Table, v View) KPIs {
	k := KPIs{
		Records:       v.Len(),
		RecordsLabel:  humanize.Comma(int64(v.Len())),
		YearSpanLabel: "-–-",
		SexLabel:      sexLabel(table.Sexes(), v.Spec.Sexes),
		ZIPLabel:      "All",
	}
	if v.Spec.ZIP != domain.AllZIPs && v.Spec.ZIP != "" {
		k.ZIPLabel = v.Spec.ZIP
	}
	var ages []float64
	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		if k.YearSpan == nil {
			k.YearSpan = &YearSpan{Min: r.Year, Max: r.Year}
		}
		if r.Year < k.YearSpan.Min {
			k.YearSpan.Min = r.Year
		}
		if r.Year > k.YearSpan.Max {
			k.YearSpan.Max = r.Year
		}
		if r.Age != nil {
			ages = append(ages, float64(*r.Age))
		}
	}
	if k.YearSpan != nil {
		k.YearSpanLabel = fmt.Sprintf("%d–%d", k.YearSpan.Min, k.YearSpan.Max)
	}
	if len(ages) > 0 {
		sort.Float64s(ages)
		median := stat.Quantile(0.5, stat.Empirical, ages, nil)
		k.MedianAge = &median
	}
	k.Description = describe(k, v.Spec)
	return k
}

// sexLabel is "All" when the selection is empty or covers every sex present.
func sexLabel(present, selected []domain.Sex) string {
	if len(selected) == 0 {
		return "All"
	}
	chosen := make(map[domain.Sex]struct{}, len(selected))
	for _, s := range selected {
		chosen[s] = struct{}{}
	}
	all := true
	for _, s := range present {
		if _, ok := chosen[s]; !ok {
			all = false
			break
		}
	}
	if all {
		return "All"
	}
	names := make([]string, 0, len(selected))
	for _, s := range domain.AllSexes {
		if _, ok := chosen[s]; ok {
			names = append(names, string(s))
		}
	}
	return strings.Join(names, ", ")
}

func describe(k KPIs, spec domain.FilterSpec) string {
	years := fmt.Sprintf("%d–%d", spec.YearMin, spec.YearMax)
	if k.Records == 0 {
		if k.ZIPLabel != "All" {
			return fmt.Sprintf("No fatal overdoses recorded in ZIP %s for %s (sex: %s).", k.ZIPLabel, years, k.SexLabel)
		}
		return fmt.Sprintf("No fatal overdoses recorded for %s (sex: %s).", years, k.SexLabel)
	}
	noun := "fatal overdoses"
	if k.Records == 1 {
		noun = "fatal overdose"
	}
	return fmt.Sprintf("%s %s in %s (sex: %s, ZIP: %s).", k.RecordsLabel, noun, years, k.SexLabel, k.ZIPLabel)
}
