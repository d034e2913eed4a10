package pipeline

import "sort"

// SubstanceCount is the number of records in a year whose toxicology
// includes a substance class. A record counts once per class it contains.
type SubstanceCount struct {
	Year      int    `json:"year"`
	Substance string `json:"substance"`
	Count     int    `json:"count"`
}

// Substances returns the composition counts sorted by year then substance.
func Substances(v View) []SubstanceCount {
	type key struct {
		year      int
		substance string
	}
	counts := make(map[key]int)
	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		for _, s := range r.Substances {
			counts[key{r.Year, s}]++
		}
	}
	out := make([]SubstanceCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, SubstanceCount{Year: k.year, Substance: k.substance, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Substance < out[j].Substance
	})
	return out
}
