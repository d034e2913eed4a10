package pipeline

import (
	"gonum.org/v1/gonum/stat"

	"datastory/pkg/domain"
)

// YearCount is the number of records in one year, split by sex. Total always
// equals Male+Female+Unknown.
type YearCount struct {
	Year    int `json:"year"`
	Total   int `json:"total"`
	Male    int `json:"male"`
	Female  int `json:"female"`
	Unknown int `json:"unknown"`
}

// Count returns the count for a series name (Total or a sex).
func (y YearCount) Count(series string) int {
	switch series {
	case SeriesTotal:
		return y.Total
	case string(domain.SexMale):
		return y.Male
	case string(domain.SexFemale):
		return y.Female
	case string(domain.SexUnknown):
		return y.Unknown
	}
	return 0
}

// SeriesTotal names the all-sexes line of the yearly chart.
const SeriesTotal = "Total"

// Trend summarizes the yearly totals.
type Trend struct {
	Slope     float64  `json:"slope"`
	Intercept float64  `json:"intercept"`
	PeakYear  int      `json:"peak_year"`
	PeakCount int      `json:"peak_count"`
	ChangePct *float64 `json:"change_pct,omitempty"`
}

// YearlySeries is the yearly aggregate.
type YearlySeries struct {
	Years []YearCount `json:"years"`
	Trend *Trend      `json:"trend,omitempty"`
}

// Axis returns the years of the series in order.
func (y YearlySeries) Axis() []int {
	out := make([]int, len(y.Years))
	for i, yc := range y.Years {
		out[i] = yc.Year
	}
	return out
}

// Yearly counts records per year over the filter range; years with no records
// appear with zero counts. An empty view yields no years.
func Yearly(v View) YearlySeries {
	if v.Len() == 0 {
		return YearlySeries{Years: []YearCount{}}
	}
	// Apply only admits records inside the filter range.
	first, last := v.Spec.YearMin, v.Spec.YearMax
	years := make([]YearCount, last-first+1)
	for i := range years {
		years[i].Year = first + i
	}
	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		yc := &years[r.Year-first]
		yc.Total++
		switch r.Sex {
		case domain.SexMale:
			yc.Male++
		case domain.SexFemale:
			yc.Female++
		default:
			yc.Unknown++
		}
	}
	return YearlySeries{Years: years, Trend: trend(years)}
}

func trend(years []YearCount) *Trend {
	if len(years) < 2 {
		return nil
	}
	xs := make([]float64, len(years))
	ys := make([]float64, len(years))
	t := &Trend{}
	for i, y := range years {
		xs[i] = float64(y.Year)
		ys[i] = float64(y.Total)
		if y.Total > t.PeakCount {
			t.PeakYear, t.PeakCount = y.Year, y.Total
		}
	}
	t.Intercept, t.Slope = stat.LinearRegression(xs, ys, nil, false)
	if firstTotal := years[0].Total; firstTotal > 0 {
		pct := float64(years[len(years)-1].Total-firstTotal) / float64(firstTotal) * 100
		t.ChangePct = &pct
	}
	return t
}
