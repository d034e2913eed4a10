package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AllZIPs is the sentinel ZIP selection meaning "no ZIP restriction".
const AllZIPs = "ALL"

var (
	// ErrInvertedRange is returned when year_min is greater than year_max.
	ErrInvertedRange = errors.New("year range inverted")
	// ErrInvalidZIP is returned for ZIP selections that are neither ALL nor five digits.
	ErrInvalidZIP = errors.New("invalid zip selection")
	// ErrInvalidSex is returned for unknown sex categories.
	ErrInvalidSex = errors.New("invalid sex selection")
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// FilterSpec is the user selected year range, sex categories and ZIP.
type FilterSpec struct {
	YearMin int    `json:"year_min"`
	YearMax int    `json:"year_max"`
	Sexes   []Sex  `json:"sexes"`
	ZIP     string `json:"zip"`
}

// Validate rejects selections that cannot be answered meaningfully.
func (f FilterSpec) Validate() error {
	if f.YearMin > f.YearMax {
		return fmt.Errorf("%w: %d > %d", ErrInvertedRange, f.YearMin, f.YearMax)
	}
	if f.ZIP != AllZIPs && !zipPattern.MatchString(f.ZIP) {
		return fmt.Errorf("%w: %q", ErrInvalidZIP, f.ZIP)
	}
	for _, s := range f.Sexes {
		switch s {
		case SexMale, SexFemale, SexUnknown:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSex, s)
		}
	}
	return nil
}

// Normalize fills unset bounds from the table defaults, canonicalizes the ZIP
// sentinel and sex list, and clamps the year range to the table coverage.
// Every adjustment is reported as a notice. The result still needs Validate.
func (f FilterSpec) Normalize(meta Meta) (FilterSpec, []string) {
	var notices []string
	out := FilterSpec{YearMin: f.YearMin, YearMax: f.YearMax, ZIP: strings.TrimSpace(f.ZIP)}

	// Unset bounds never contradict the bound that was given: a lone bound
	// outside coverage yields a disjoint range and a notice, not an inversion.
	if out.YearMax == 0 {
		out.YearMax = max(meta.YearMax, out.YearMin)
	}
	if out.YearMin == 0 {
		out.YearMin = out.YearMax - DefaultWindow
		if out.YearMin < meta.YearMin && meta.YearMin <= out.YearMax {
			out.YearMin = meta.YearMin
		}
	}
	if out.YearMin <= out.YearMax && out.YearMax >= meta.YearMin && out.YearMin <= meta.YearMax {
		if out.YearMin < meta.YearMin {
			notices = append(notices, fmt.Sprintf("year_min raised to %d, the first year in the data", meta.YearMin))
			out.YearMin = meta.YearMin
		}
		if out.YearMax > meta.YearMax {
			notices = append(notices, fmt.Sprintf("year_max lowered to %d, the last year in the data", meta.YearMax))
			out.YearMax = meta.YearMax
		}
	} else if out.YearMin <= out.YearMax {
		notices = append(notices, fmt.Sprintf("years %d–%d are outside the data coverage %d–%d",
			out.YearMin, out.YearMax, meta.YearMin, meta.YearMax))
	}

	switch strings.ToUpper(out.ZIP) {
	case "", AllZIPs, "ALL ZIPS":
		out.ZIP = AllZIPs
	}

	seen := make(map[Sex]struct{}, len(f.Sexes))
	for _, s := range f.Sexes {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out.Sexes = append(out.Sexes, s)
	}
	sort.Slice(out.Sexes, func(i, j int) bool { return out.Sexes[i] < out.Sexes[j] })
	return out, notices
}

// Matches reports whether a record satisfies the filter predicate. An empty
// sex list places no restriction on sex.
func (f FilterSpec) Matches(r Record) bool {
	if r.Year < f.YearMin || r.Year > f.YearMax {
		return false
	}
	if f.ZIP != AllZIPs && r.ZIP != f.ZIP {
		return false
	}
	if len(f.Sexes) == 0 {
		return true
	}
	for _, s := range f.Sexes {
		if r.Sex == s {
			return true
		}
	}
	return false
}

// Key returns a canonical string identifying the selection, suitable for memoization.
func (f FilterSpec) Key() string {
	sexes := make([]string, len(f.Sexes))
	for i, s := range f.Sexes {
		sexes[i] = string(s)
	}
	sort.Strings(sexes)
	return strconv.Itoa(f.YearMin) + "-" + strconv.Itoa(f.YearMax) + "|" + strings.Join(sexes, ",") + "|" + f.ZIP
}
