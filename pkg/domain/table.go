package domain

import (
	"sort"
	"time"
)

// Source identifies where a Table was loaded from.
type Source string

const (
	SourceAPI       Source = "api"
	SourceWarehouse Source = "warehouse"
	SourceSnapshot  Source = "snapshot"
)

// Column describes one column of the normalized schema.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the shared column layout of every record in a Table.
var Schema = []Column{
	{Name: "case_id", Type: "string", Description: "unique case identifier"},
	{Name: "case_year", Type: "integer", Description: "year of death"},
	{Name: "sex", Type: "category", Description: "Male, Female or Unknown"},
	{Name: "age", Type: "integer", Description: "age at death, when recorded"},
	{Name: "zip_code", Type: "string", Description: "five digit incident ZIP, empty when missing"},
	{Name: "substances", Type: "set", Description: "substance classes found in toxicology"},
}

// Meta captures load provenance and dataset coverage.
type Meta struct {
	YearMin       int       `json:"year_min"`
	YearMax       int       `json:"year_max"`
	HasSubstances bool      `json:"has_substances"`
	HasZIP        bool      `json:"has_zip"`
	Source        string    `json:"source"`
	SourceURL     string    `json:"source_url,omitempty"`
	LoadedFrom    Source    `json:"loaded_from"`
	LoadedAt      time.Time `json:"loaded_at"`
	Fallback      bool      `json:"fallback"`
	Notice        string    `json:"notice,omitempty"`
	Rows          int       `json:"rows"`
	Dropped       int       `json:"dropped"`
	OutOfCoverage int       `json:"out_of_coverage"`
}

// Table is an ordered, read-only sequence of records plus load metadata.
type Table struct {
	meta    Meta
	records []Record
	sexes   []Sex
	zips    []string
}

// NewTable takes ownership of records; callers must not mutate them afterwards.
func NewTable(meta Meta, records []Record) *Table {
	sexSet := make(map[Sex]struct{})
	zipSet := make(map[string]struct{})
	for _, r := range records {
		sexSet[r.Sex] = struct{}{}
		if r.HasZIP() {
			zipSet[r.ZIP] = struct{}{}
		}
		if len(r.Substances) > 0 {
			meta.HasSubstances = true
		}
	}
	t := &Table{meta: meta, records: records}
	for _, s := range AllSexes {
		if _, ok := sexSet[s]; ok {
			t.sexes = append(t.sexes, s)
		}
	}
	for z := range zipSet {
		t.zips = append(t.zips, z)
	}
	sort.Strings(t.zips)
	t.meta.HasZIP = len(t.zips) > 0
	return t
}

// Meta returns the load metadata.
func (t *Table) Meta() Meta { return t.meta }

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Record returns the record at index i.
func (t *Table) Record(i int) Record { return t.records[i] }

// Sexes returns the distinct sex categories present, in display order.
func (t *Table) Sexes() []Sex { return append([]Sex(nil), t.sexes...) }

// ZIPs returns the distinct non-empty ZIP codes present, sorted.
func (t *Table) ZIPs() []string { return append([]string(nil), t.zips...) }

// DefaultWindow is how many years before the latest year the default filter starts.
const DefaultWindow = 7

// DefaultFilter returns the initial selection: the most recent years, every
// sex present and all ZIP codes.
func (t *Table) DefaultFilter() FilterSpec {
	start := t.meta.YearMax - DefaultWindow
	if start < t.meta.YearMin {
		start = t.meta.YearMin
	}
	return FilterSpec{YearMin: start, YearMax: t.meta.YearMax, Sexes: t.Sexes(), ZIP: AllZIPs}
}
