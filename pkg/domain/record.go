// Package domain defines the fatal overdose case records, the loaded table and
// the filter value object shared by the ingest, pipeline and presentation layers.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Sex is the categorical sex recorded for a case.
type Sex string

const (
	SexMale    Sex = "Male"
	SexFemale  Sex = "Female"
	SexUnknown Sex = "Unknown"
)

// AllSexes lists every category in display order.
var AllSexes = []Sex{SexFemale, SexMale, SexUnknown}

// ParseSex normalizes a raw source value. Unrecognized and blank values map to Unknown.
func ParseSex(raw string) Sex {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "M", "MALE":
		return SexMale
	case "F", "FEMALE":
		return SexFemale
	default:
		return SexUnknown
	}
}

// ParseSexStrict parses a user supplied category, rejecting anything that is not a known sex.
func ParseSexStrict(raw string) (Sex, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "M", "MALE":
		return SexMale, nil
	case "F", "FEMALE":
		return SexFemale, nil
	case "U", "UNKNOWN":
		return SexUnknown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSex, raw)
	}
}

// Record is one fatal overdose case. Records are immutable once loaded.
type Record struct {
	CaseID string `json:"case_id"`
	Year   int    `json:"case_year"`
	Sex    Sex    `json:"sex"`
	Age    *int   `json:"age,omitempty"`
	// ZIP is the normalized five digit code; empty when missing or invalid.
	ZIP string `json:"zip_code,omitempty"`
	// Substances holds the composition classes found in toxicology, sorted and unique.
	Substances []string `json:"substances"`
	// Combination holds the labels used for drug-combination signatures, sorted and unique.
	Combination []string `json:"combination"`
}

// NewRecord classifies raw toxicology strings and builds a Record.
func NewRecord(caseID string, year int, sex Sex, zip string, toxicology []string) Record {
	subs := make(map[string]struct{}, len(toxicology))
	combo := make(map[string]struct{}, len(toxicology))
	for _, raw := range toxicology {
		if class, ok := ClassifySubstance(raw); ok {
			subs[class] = struct{}{}
		}
		if label, ok := CombinationLabel(raw); ok {
			combo[label] = struct{}{}
		}
	}
	return Record{
		CaseID:      caseID,
		Year:        year,
		Sex:         sex,
		ZIP:         zip,
		Substances:  sortedKeys(subs),
		Combination: sortedKeys(combo),
	}
}

// HasZIP reports whether the record carries a usable ZIP code.
func (r Record) HasZIP() bool { return r.ZIP != "" }

// Signature returns the order-independent combination signature, or "" when
// no substance was recorded.
func (r Record) Signature() string {
	return strings.Join(r.Combination, CombinationSeparator)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
