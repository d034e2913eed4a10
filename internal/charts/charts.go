// Package charts turns pipeline aggregates into render-ready chart documents
// consumed by the dashboard front end, and renders PNG versions of the
// line and area charts.
package charts

import (
	"sort"
	"strconv"

	"datastory/internal/pipeline"
	"datastory/pkg/domain"
)

// Chart types understood by the front end.
const (
	TypeLine        = "line"
	TypeStackedArea = "stacked_area"
	TypeTreemap     = "treemap"
	TypeChoropleth  = "choropleth"
)

// ChartConfig defines how to render a chart.
type ChartConfig struct {
	ChartType  string        `json:"chartType"`
	Title      string        `json:"title"`
	XAxis      string        `json:"xAxis,omitempty"`
	YAxis      string        `json:"yAxis,omitempty"`
	Series     []ChartSeries `json:"series"`
	Colors     []string      `json:"colors,omitempty"`
	ShowLegend bool          `json:"showLegend"`
	Map        *MapSettings  `json:"map,omitempty"`
	Notes      []string      `json:"notes,omitempty"`
}

// ChartSeries is one named series of points.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint is a single labelled value.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// MapSettings positions the choropleth over Allegheny County.
type MapSettings struct {
	CenterLat    float64 `json:"centerLat"`
	CenterLon    float64 `json:"centerLon"`
	Zoom         float64 `json:"zoom"`
	Style        string  `json:"style"`
	FeatureIDKey string  `json:"featureIdKey"`
}

// Series colours for the yearly chart.
var SeriesColors = map[string]string{
	pipeline.SeriesTotal:      "#555555",
	string(domain.SexMale):    "#1f77b4",
	string(domain.SexFemale):  "#e63946",
	string(domain.SexUnknown): "#9e9e9e",
}

// SubstanceColors keeps each class on a stable colour across filters.
var SubstanceColors = map[string]string{
	domain.SubstanceAlcohol:      "#f4a261",
	domain.SubstanceCocaine:      "#2a9d8f",
	domain.SubstanceFentanyl:     "#e63946",
	domain.SubstanceHeroin:       "#6a4c93",
	domain.SubstanceOther:        "#adb5bd",
	domain.SubstanceOtherOpioids: "#457b9d",
}

// DefaultSeries is the yearly selection shown when none is requested.
var DefaultSeries = []string{pipeline.SeriesTotal, string(domain.SexMale), string(domain.SexFemale)}

// ValidSeries reports whether name is a yearly series.
func ValidSeries(name string) bool {
	_, ok := SeriesColors[name]
	return ok
}

// Yearly builds the yearly line chart with one series per selected name.
func Yearly(y pipeline.YearlySeries, selected []string) ChartConfig {
	if len(selected) == 0 {
		selected = DefaultSeries
	}
	cfg := ChartConfig{
		ChartType:  TypeLine,
		Title:      "Fatal overdoses per year",
		XAxis:      "Year",
		YAxis:      "Deaths",
		Series:     []ChartSeries{},
		ShowLegend: true,
	}
	for _, name := range selected {
		if !ValidSeries(name) {
			continue
		}
		s := ChartSeries{Name: name, Color: SeriesColors[name], Data: make([]ChartPoint, 0, len(y.Years))}
		for _, yc := range y.Years {
			s.Data = append(s.Data, ChartPoint{Label: strconv.Itoa(yc.Year), Value: float64(yc.Count(name))})
		}
		cfg.Series = append(cfg.Series, s)
		cfg.Colors = append(cfg.Colors, s.Color)
	}
	return cfg
}

// Substances builds the stacked area chart. Every series carries a point for
// every year of axis so the stack lines up with the yearly chart; a nil axis
// uses the years present in counts.
func Substances(counts []pipeline.SubstanceCount, axis []int) ChartConfig {
	cfg := ChartConfig{
		ChartType:  TypeStackedArea,
		Title:      "Substances present in toxicology",
		XAxis:      "Year",
		YAxis:      "Deaths with substance",
		Series:     []ChartSeries{},
		ShowLegend: true,
		Notes:      []string{"A death involving several substances is counted once under each."},
	}
	years := axis
	seenYear := map[int]bool{}
	bySubstance := map[string]map[int]int{}
	var order []string
	for _, c := range counts {
		if axis == nil && !seenYear[c.Year] {
			seenYear[c.Year] = true
			years = append(years, c.Year)
		}
		if bySubstance[c.Substance] == nil {
			bySubstance[c.Substance] = map[int]int{}
			order = append(order, c.Substance)
		}
		bySubstance[c.Substance][c.Year] = c.Count
	}
	sort.Strings(order)
	for _, name := range order {
		s := ChartSeries{Name: name, Color: SubstanceColors[name], Data: make([]ChartPoint, 0, len(years))}
		for _, y := range years {
			s.Data = append(s.Data, ChartPoint{Label: strconv.Itoa(y), Value: float64(bySubstance[name][y])})
		}
		cfg.Series = append(cfg.Series, s)
		cfg.Colors = append(cfg.Colors, s.Color)
	}
	return cfg
}

// Combinations builds the treemap of the top signatures plus the folded rest.
func Combinations(c pipeline.CombinationSummary) ChartConfig {
	s := ChartSeries{Name: "Combinations", Data: make([]ChartPoint, 0, len(c.Top)+1)}
	for _, cc := range c.Top {
		s.Data = append(s.Data, ChartPoint{Label: cc.Signature, Value: float64(cc.Count)})
	}
	if c.Other.Count > 0 {
		s.Data = append(s.Data, ChartPoint{Label: c.Other.Signature, Value: float64(c.Other.Count)})
	}
	cfg := ChartConfig{
		ChartType: TypeTreemap,
		Title:     "Most common drug combinations",
		Series:    []ChartSeries{s},
	}
	if c.NoSubstance > 0 {
		cfg.Notes = append(cfg.Notes, strconv.Itoa(c.NoSubstance)+" deaths with no substance recorded are not shown.")
	}
	return cfg
}

// ZIPs builds the choropleth of deaths per ZIP code.
func ZIPs(z pipeline.ZIPSummary) ChartConfig {
	s := ChartSeries{Name: "Deaths", Data: make([]ChartPoint, 0, len(z.Counts))}
	for _, c := range z.Counts {
		s.Data = append(s.Data, ChartPoint{Label: c.ZIP, Value: float64(c.Count)})
	}
	cfg := ChartConfig{
		ChartType: TypeChoropleth,
		Title:     "Fatal overdoses by ZIP code",
		Series:    []ChartSeries{s},
		Map: &MapSettings{
			CenterLat:    40.44,
			CenterLon:    -79.99,
			Zoom:         9.5,
			Style:        "open-street-map",
			FeatureIDKey: "properties.ZCTA5CE10",
		},
	}
	if z.Missing > 0 {
		cfg.Notes = append(cfg.Notes, strconv.Itoa(z.Missing)+" deaths without a usable ZIP are not mapped.")
	}
	if z.Unmapped > 0 {
		cfg.Notes = append(cfg.Notes, strconv.Itoa(z.Unmapped)+" deaths in ZIPs outside the Pennsylvania ZCTA boundaries are not mapped.")
	}
	return cfg
}

// Build returns the chart for an aggregate kind from a dashboard.
func Build(kind string, d pipeline.Dashboard, series []string) (ChartConfig, bool) {
	switch kind {
	case pipeline.KindYearly:
		return Yearly(d.Yearly, series), true
	case pipeline.KindSubstances:
		return Substances(d.Substances, d.Yearly.Axis()), true
	case pipeline.KindCombinations:
		return Combinations(d.Combinations), true
	case pipeline.KindZIPs:
		return ZIPs(d.ZIPs), true
	}
	return ChartConfig{}, false
}
