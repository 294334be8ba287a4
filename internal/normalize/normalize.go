// Package normalize harmonizes units and categorical encodings in a unified
// table according to a declarative rule table.
package normalize

import (
	"fmt"
	"math"

	"github.com/brcamerge/brcamerge/internal/table"
)

// ConversionSkipped reports a rule whose column is absent from the table.
// It is recoverable: the rule is a no-op.
type ConversionSkipped struct {
	Rule   string
	Column string
}

func (e *ConversionSkipped) Error() string {
	return fmt.Sprintf("%s: column %q not in table, skipped", e.Rule, e.Column)
}

// RuleResult counts what one rule did.
type RuleResult struct {
	Rule    string
	Column  string
	Changed int
	// Untouched counts present cells a conversion could not apply to
	// because they are not numeric.
	Untouched int
	Skipped   bool
}

// Summary lists one result per conversion and per recoded column, in rule order.
type Summary struct {
	Results []RuleResult
}

// Changed totals the cells changed by all rules.
func (s Summary) Changed() int {
	n := 0
	for _, r := range s.Results {
		n += r.Changed
	}
	return n
}

// Normalizer applies a validated Rules table.
type Normalizer struct {
	rules Rules
	// canon[i] maps equivalence key to canonical label for Recodes[i].
	canon []map[string]string
}

// New validates rules and prepares lookup tables. Protected columns, such as
// dataset_source and the identifier column, may not be targeted.
func New(rules Rules, protected ...string) (*Normalizer, error) {
	protected = append([]string{table.SourceColumn}, protected...)
	if err := rules.ValidateAll(protected...); err != nil {
		return nil, err
	}
	n := &Normalizer{rules: rules}
	for _, rc := range rules.Recodes {
		m := map[string]string{}
		for _, cl := range rc.Classes {
			for _, eq := range cl.Equivalents {
				m[eq] = cl.Canonical
			}
		}
		n.canon = append(n.canon, m)
	}
	return n, nil
}

// Apply returns a normalized copy of t. It never fails: absent cells and
// values outside the rule tables pass through unchanged, and rules whose
// column is missing are reported as *ConversionSkipped.
func (n *Normalizer) Apply(t *table.Table) (*table.Table, Summary, []error) {
	out := t.Clone()
	var sum Summary
	var warnings []error

	for _, c := range n.rules.Conversions {
		res := RuleResult{Rule: c.String(), Column: c.Column}
		if !out.HasColumn(c.Column) {
			res.Skipped = true
			warnings = append(warnings, &ConversionSkipped{Rule: res.Rule, Column: c.Column})
			sum.Results = append(sum.Results, res)
			continue
		}
		p := c.precision()
		for i := 0; i < out.Len(); i++ {
			if out.At(i, table.SourceColumn).Text() != c.Source {
				continue
			}
			v := out.At(i, c.Column)
			if v.IsAbsent() {
				continue
			}
			f, ok := v.Float()
			if !ok {
				res.Untouched++
				continue
			}
			out.Set(i, c.Column, table.Num(round(f*c.Factor, p)))
			res.Changed++
		}
		sum.Results = append(sum.Results, res)
	}

	for ri, rc := range n.rules.Recodes {
		for _, col := range rc.Columns {
			res := RuleResult{Rule: rc.String(), Column: col}
			if !out.HasColumn(col) {
				res.Skipped = true
				warnings = append(warnings, &ConversionSkipped{Rule: res.Rule, Column: col})
				sum.Results = append(sum.Results, res)
				continue
			}
			for i := 0; i < out.Len(); i++ {
				v := out.At(i, col)
				if v.IsAbsent() {
					continue
				}
				label, ok := n.canon[ri][v.Key()]
				if !ok {
					continue
				}
				nv := table.Str(label)
				if nv.Equal(v) {
					continue
				}
				out.Set(i, col, nv)
				res.Changed++
			}
			sum.Results = append(sum.Results, res)
		}
	}
	return out, sum, warnings
}

func round(f float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	r := math.Round(f*pow) / pow
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return f
	}
	return r
}
