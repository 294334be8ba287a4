package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brcamerge/brcamerge/internal/colname"
)

// DefaultThreshold is the minimum similarity for a fuzzy match.
const DefaultThreshold = 0.7

// DefaultSkipCategories hold many low-value columns (expression matrices,
// bookkeeping) and are not fuzzy matched unless asked.
var DefaultSkipCategories = []Category{GenomicOther, Metadata, Other}

// SourceColumns is one source's header in file order.
type SourceColumns struct {
	Key     string
	Columns []string
}

// Phase records how a group was formed.
type Phase string

const (
	PhaseExact Phase = "exact"
	PhaseFuzzy Phase = "fuzzy"
)

// Group is a suggested set of columns, at most one per source, that denote
// the same concept.
type Group struct {
	Unified  string
	Category Category
	Phase    Phase
	// Score is the lowest member-to-seed similarity; 1 for exact groups.
	Score   float64
	Columns map[string]string
}

// Sources returns how many sources contribute a column.
func (g Group) Sources() int { return len(g.Columns) }

// Entry converts the group into a mapping entry.
func (g Group) Entry() Entry {
	cols := make(map[string]string, len(g.Columns))
	for k, v := range g.Columns {
		cols[k] = v
	}
	return Entry{Unified: g.Unified, Category: g.Category, Columns: cols}
}

// SuggestOptions tunes Suggest. Zero values select the defaults.
type SuggestOptions struct {
	Threshold      float64
	Scorer         Scorer
	SkipCategories []Category
}

func (o SuggestOptions) withDefaults() SuggestOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Scorer == nil {
		o.Scorer = LevenshteinRatio
	}
	if o.SkipCategories == nil {
		o.SkipCategories = DefaultSkipCategories
	}
	return o
}

type column struct {
	source int // index into the sources slice
	index  int // position in that source's header
	raw    string
	key    string
}

// ExactGroups groups columns by normalized key. Groups are ordered by first
// appearance scanning sources in order, then header order. When one source
// has several columns with the same key, the first one joins the group.
func ExactGroups(sources []SourceColumns) []Group {
	var order []string
	byKey := map[string]*Group{}
	for _, c := range flatten(sources) {
		g, ok := byKey[c.key]
		if !ok {
			g = &Group{
				Unified:  c.key,
				Category: Categorize(c.raw),
				Phase:    PhaseExact,
				Score:    1,
				Columns:  map[string]string{},
			}
			byKey[c.key] = g
			order = append(order, c.key)
		}
		src := sources[c.source].Key
		if _, taken := g.Columns[src]; !taken {
			g.Columns[src] = c.raw
		}
	}
	out := make([]Group, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// Suggest proposes match groups across sources.
//
// Exact phase: columns sharing a normalized key form a group when at least
// two sources contribute, whatever their category.
//
// Fuzzy phase: the remaining columns are bucketed by Categorize and buckets
// are visited in Precedence order, except the SkipCategories buckets. Inside
// a bucket columns are ordered by source, then header position. Each unconsumed column seeds a group; every
// later column from a source not yet in the group joins it when its score
// against the seed reaches the threshold. Groups with fewer than two sources
// are dropped. The seed's normalized key becomes the unified name.
//
// The result is sorted by category precedence, then unified name, and is the
// same for the same input.
func Suggest(sources []SourceColumns, opt SuggestOptions) []Group {
	opt = opt.withDefaults()
	skip := map[Category]bool{}
	for _, c := range opt.SkipCategories {
		skip[c] = true
	}

	consumed := map[[2]int]bool{}
	names := map[string]bool{}
	var groups []Group

	for _, g := range ExactGroups(sources) {
		if g.Sources() < 2 {
			continue
		}
		for _, c := range flatten(sources) {
			if c.key == g.Unified && g.Columns[sources[c.source].Key] == c.raw {
				consumed[[2]int{c.source, c.index}] = true
			}
		}
		names[g.Unified] = true
		groups = append(groups, g)
	}

	buckets := map[Category][]column{}
	for _, c := range flatten(sources) {
		if consumed[[2]int{c.source, c.index}] {
			continue
		}
		cat := Categorize(c.raw)
		buckets[cat] = append(buckets[cat], c)
	}

	for _, cat := range Precedence {
		if skip[cat] {
			continue
		}
		cols := buckets[cat]
		used := make([]bool, len(cols))
		for i, seed := range cols {
			if used[i] {
				continue
			}
			used[i] = true
			members := map[int]string{seed.source: seed.raw}
			var joined []int
			minScore := 1.0
			for j := i + 1; j < len(cols); j++ {
				cand := cols[j]
				if used[j] {
					continue
				}
				if _, taken := members[cand.source]; taken {
					continue
				}
				s := opt.Scorer(seed.raw, cand.raw)
				if s < opt.Threshold {
					continue
				}
				members[cand.source] = cand.raw
				joined = append(joined, j)
				minScore = min(minScore, s)
			}
			if len(members) < 2 {
				continue
			}
			for _, j := range joined {
				used[j] = true
			}
			g := Group{
				Unified:  uniqueName(seed.key, names),
				Category: cat,
				Phase:    PhaseFuzzy,
				Score:    minScore,
				Columns:  map[string]string{},
			}
			for src, raw := range members {
				g.Columns[sources[src].Key] = raw
			}
			names[g.Unified] = true
			groups = append(groups, g)
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		ri, rj := Rank(groups[i].Category), Rank(groups[j].Category)
		if ri != rj {
			return ri < rj
		}
		return groups[i].Unified < groups[j].Unified
	})
	return groups
}

func flatten(sources []SourceColumns) []column {
	var out []column
	for si, s := range sources {
		for ci, raw := range s.Columns {
			out = append(out, column{source: si, index: ci, raw: raw, key: colname.Normalize(raw)})
		}
	}
	return out
}

func uniqueName(base string, taken map[string]bool) string {
	if base == "" {
		base = "column"
	}
	name := base
	for n := 2; taken[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	return name
}

// SuggestionsNode renders groups as a mapping document, with a comment
// heading each category and each fuzzy group's score on its key line.
func SuggestionsNode(groups []Group, sourceKeys []string) *yaml.Node {
	w := &Table{sourceKeys: sourceKeys}
	root := &yaml.Node{Kind: yaml.MappingNode}
	var last Category
	for i, g := range groups {
		key := scalar(g.Unified)
		if i == 0 || g.Category != last {
			key.HeadComment = "# " + strings.ToUpper(string(g.Category))
			last = g.Category
		}
		if g.Phase == PhaseFuzzy {
			key.LineComment = fmt.Sprintf("# fuzzy %.2f", g.Score)
		}
		root.Content = append(root.Content, key, w.entryNode(g.Entry()))
	}
	return &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "# Suggested column mappings. Review, then copy or accept entries into the mapping file.",
		Content:     []*yaml.Node{root},
	}
}

// WriteSuggestions writes groups as a mapping document that LoadYAML reads back.
func WriteSuggestions(path string, groups []Group, sourceKeys []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(SuggestionsNode(groups, sourceKeys))
	if err != nil {
		return fmt.Errorf("marshaling suggestions: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// CountByCategory tallies groups per category.
func CountByCategory(groups []Group) map[Category]int {
	out := map[Category]int{}
	for _, g := range groups {
		out[g.Category]++
	}
	return out
}
