package pipeline

import "sort"

// ZIPCount is the number of records in one ZIP code.
type ZIPCount struct {
	ZIP   string `json:"zip"`
	Count int    `json:"count"`
}

// ZIPSummary is the ZIP aggregate. Every record of the view is accounted for
// exactly once: sum(Counts) + Missing + Unmapped equals the view size.
type ZIPSummary struct {
	Counts []ZIPCount `json:"counts"`
	// Missing counts records with no usable ZIP.
	Missing int `json:"missing"`
	// Unmapped counts records whose ZIP has no boundary polygon.
	Unmapped int `json:"unmapped"`
}

// ZIPs counts records per ZIP, listed in ZIP order. When valid is non-nil, ZIPs outside it are
// counted as Unmapped instead of being listed.
func ZIPs(v View, valid map[string]struct{}) ZIPSummary {
	counts := make(map[string]int)
	summary := ZIPSummary{Counts: []ZIPCount{}}
	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		switch {
		case !r.HasZIP():
			summary.Missing++
		case valid != nil && !contains(valid, r.ZIP):
			summary.Unmapped++
		default:
			counts[r.ZIP]++
		}
	}
	for zip, n := range counts {
		summary.Counts = append(summary.Counts, ZIPCount{ZIP: zip, Count: n})
	}
	sort.Slice(summary.Counts, func(i, j int) bool { return summary.Counts[i].ZIP < summary.Counts[j].ZIP })
	return summary
}

// ByFrequency returns a copy of Counts ordered by count descending, ties by ZIP.
func (z ZIPSummary) ByFrequency() []ZIPCount {
	out := append([]ZIPCount(nil), z.Counts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
