package mapping

import "sort"

// OverlapSummary describes how normalized column names are shared across
// sources.
type OverlapSummary struct {
	SourceKeys []string
	// Columns per source after normalization (distinct keys).
	PerSource map[string]int
	Total     int
	Shared    int // keys present in two or more sources
	InAll     int
	// All holds groups present in every source; Partial those shared by at
	// least two but not all. Both are sorted by unified name.
	All     []Group
	Partial []Group
	// CategoryCounts counts each source's raw columns per heuristic category.
	CategoryCounts map[string]map[Category]int
}

// Overlap summarizes the exact-phase grouping of the given sources.
func Overlap(sources []SourceColumns) OverlapSummary {
	s := OverlapSummary{
		PerSource:      map[string]int{},
		CategoryCounts: map[string]map[Category]int{},
	}
	for _, src := range sources {
		s.SourceKeys = append(s.SourceKeys, src.Key)
		counts := map[Category]int{}
		for _, c := range src.Columns {
			counts[Categorize(c)]++
		}
		s.CategoryCounts[src.Key] = counts
	}

	groups := ExactGroups(sources)
	s.Total = len(groups)
	for _, g := range groups {
		for k := range g.Columns {
			s.PerSource[k]++
		}
		switch {
		case g.Sources() == len(sources) && len(sources) > 1:
			s.InAll++
			s.Shared++
			s.All = append(s.All, g)
		case g.Sources() >= 2:
			s.Shared++
			s.Partial = append(s.Partial, g)
		}
	}
	byName := func(gs []Group) {
		sort.Slice(gs, func(i, j int) bool { return gs[i].Unified < gs[j].Unified })
	}
	byName(s.All)
	byName(s.Partial)
	return s
}
