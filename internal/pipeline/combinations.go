package pipeline

import (
	"sort"
	"strings"

	"datastory/pkg/domain"
)

// OtherCombinations labels the bucket of signatures outside the top N.
const OtherCombinations = "Other combinations"

// ComboCount is the number of records sharing a combination signature.
type ComboCount struct {
	Signature  string   `json:"signature"`
	Substances []string `json:"substances,omitempty"`
	Count      int      `json:"count"`
	// Distinct is only set on the Other bucket: how many signatures it folds.
	Distinct int `json:"distinct,omitempty"`
}

// CombinationSummary is the drug-combination aggregate. The counts in Top
// plus Other.Count equal the number of records with at least one substance;
// records without any are reported in NoSubstance.
type CombinationSummary struct {
	Top         []ComboCount `json:"top"`
	Other       ComboCount   `json:"other"`
	NoSubstance int          `json:"no_substance"`
}

// Combinations ranks signatures by frequency, ties broken by signature, and
// keeps the top N. topN <= 0 keeps every signature.
func Combinations(v View, topN int) CombinationSummary {
	counts := make(map[string]int)
	summary := CombinationSummary{Top: []ComboCount{}, Other: ComboCount{Signature: OtherCombinations}}
	for i := 0; i < v.Len(); i++ {
		sig := v.Record(i).Signature()
		if sig == "" {
			summary.NoSubstance++
			continue
		}
		counts[sig]++
	}
	ranked := make([]ComboCount, 0, len(counts))
	for sig, n := range counts {
		ranked = append(ranked, ComboCount{
			Signature:  sig,
			Substances: strings.Split(sig, domain.CombinationSeparator),
			Count:      n,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Signature < ranked[j].Signature
	})
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}
	summary.Top = append(summary.Top, ranked[:topN]...)
	for _, c := range ranked[topN:] {
		summary.Other.Count += c.Count
		summary.Other.Distinct++
	}
	return summary
}
