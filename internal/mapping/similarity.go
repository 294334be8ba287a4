package mapping

import (
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/brcamerge/brcamerge/internal/colname"
)

// Scorer returns a similarity in [0,1] between two raw column names.
type Scorer func(a, b string) float64

// Scorer names accepted in configuration.
const (
	ScorerLevenshtein = "levenshtein"
	ScorerSequence    = "sequence"
)

// NewScorer resolves a scorer by name. The empty name selects levenshtein.
func NewScorer(name string) (Scorer, error) {
	switch name {
	case "", ScorerLevenshtein:
		return LevenshteinRatio, nil
	case ScorerSequence:
		return SequenceRatio, nil
	}
	return nil, fmt.Errorf("unknown scorer %q (want %s or %s)", name, ScorerLevenshtein, ScorerSequence)
}

// LevenshteinRatio is 1 - distance/maxLen over the normalized names,
// counted in runes.
func LevenshteinRatio(a, b string) float64 {
	na, nb := colname.Normalize(a), colname.Normalize(b)
	maxLen := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(na, nb))/float64(maxLen)
}

// SequenceRatio is the matching-blocks ratio 2*M/T over the normalized
// names, computed per rune.
func SequenceRatio(a, b string) float64 {
	m := difflib.NewMatcher(runes(colname.Normalize(a)), runes(colname.Normalize(b)))
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
