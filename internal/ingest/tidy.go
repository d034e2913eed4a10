package ingest

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"datastory/pkg/domain"
)

// Row is one raw source row keyed by column name.
type Row map[string]string

var (
	yearColumns      = []string{"case_year", "death_year"}
	zipColumns       = []string{"incident_zip", "zip", "zipcode", "incident_zipcode", "zcta"}
	caseIDColumns    = []string{"case_id", "_id"}
	substancePrefix  = "combined_od"
	fiveDigitPattern = regexp.MustCompile(`\d{5}`)
)

// columns is the result of column discovery over a source header.
type columns struct {
	year       string
	sex        string
	age        string
	zip        string
	caseID     string
	substances []string
}

func discover(header []string) columns {
	byLower := make(map[string]string, len(header))
	for _, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := byLower[key]; !seen {
			byLower[key] = h
		}
	}
	first := func(candidates []string) string {
		for _, c := range candidates {
			if actual, ok := byLower[c]; ok {
				return actual
			}
		}
		return ""
	}
	cols := columns{
		year:   first(yearColumns),
		sex:    byLower["sex"],
		age:    byLower["age"],
		zip:    first(zipColumns),
		caseID: first(caseIDColumns),
	}
	for lower, actual := range byLower {
		if strings.HasPrefix(lower, substancePrefix) {
			cols.substances = append(cols.substances, actual)
		}
	}
	sort.Slice(cols.substances, func(i, j int) bool {
		return substanceOrdinal(cols.substances[i]) < substanceOrdinal(cols.substances[j])
	})
	return cols
}

func substanceOrdinal(col string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(col)), substancePrefix))
	if err != nil {
		return math.MaxInt
	}
	return n
}

// TidyResult holds the records built from raw rows plus the rows left out.
type TidyResult struct {
	Records       []domain.Record
	Dropped       int
	OutOfCoverage int
}

// Tidy turns raw rows into domain records. Rows without a numeric year are
// dropped, rows before minYear are counted as out of coverage, and rows with
// an unusable ZIP are kept with an empty ZIP.
func Tidy(header []string, rows []Row, minYear int) TidyResult {
	cols := discover(header)
	res := TidyResult{Records: make([]domain.Record, 0, len(rows))}
	for i, row := range rows {
		year, ok := parseInt(row[cols.year])
		if cols.year == "" || !ok {
			res.Dropped++
			continue
		}
		if year < minYear {
			res.OutOfCoverage++
			continue
		}
		caseID := strings.TrimSpace(row[cols.caseID])
		if cols.caseID == "" || caseID == "" {
			caseID = strconv.Itoa(i + 1)
		}
		toxicology := make([]string, 0, len(cols.substances))
		for _, c := range cols.substances {
			if v := cleanCell(row[c]); v != "" {
				toxicology = append(toxicology, v)
			}
		}
		rec := domain.NewRecord(caseID, year, domain.ParseSex(cleanCell(row[cols.sex])), NormalizeZIP(row[cols.zip]), toxicology)
		if age, ok := parseInt(row[cols.age]); ok && age >= 0 {
			rec.Age = &age
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// NormalizeZIP extracts the first run of five digits, or "" when there is none.
func NormalizeZIP(raw string) string {
	return fiveDigitPattern.FindString(raw)
}

// cleanCell blanks the textual null markers sources use for missing values.
func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "nan", "null", "none", "na", "n/a":
		return ""
	}
	return v
}

// parseInt accepts integers and integral floats such as "2020.0".
func parseInt(raw string) (int, bool) {
	s := cleanCell(raw)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
