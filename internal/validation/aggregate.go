package validation

import (
	"github.com/brcamerge/brcamerge/internal/report"
	"github.com/brcamerge/brcamerge/internal/table"
)

// AggregateCheck holds the result of aggregate comparison.
type AggregateCheck struct {
	Match  bool              `json:"match" yaml:"match"`
	Checks []AggregateDetail `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// AggregateDetail describes a single aggregate comparison.
type AggregateDetail struct {
	Type         string `json:"type" yaml:"type"` // count_distinct
	Column       string `json:"column" yaml:"column"`
	SourceValue  int    `json:"source_value" yaml:"source_value"`
	UnifiedValue int    `json:"unified_value" yaml:"unified_value"`
	Match        bool   `json:"match" yaml:"match"`
}

// validateAggregates compares the number of distinct identifiers in the
// projection with the source's block of the unified table. Sources without
// the identifier column pass.
func (v *Validator) validateAggregates(s SourceRun, offset int) *AggregateCheck {
	check := &AggregateCheck{Match: true}
	col := v.IdentifierColumn
	if col == "" || s.Projected == nil || v.Unified == nil || !s.Projected.HasColumn(col) {
		return check
	}

	end := min(offset+s.Projected.Len(), v.Unified.Len())
	src := countDistinct(s.Projected, col, 0, s.Projected.Len())
	uni := countDistinct(v.Unified, col, offset, end)
	d := AggregateDetail{
		Type:         "count_distinct",
		Column:       col,
		SourceValue:  src,
		UnifiedValue: uni,
		Match:        src == uni,
	}
	check.Checks = append(check.Checks, d)
	check.Match = d.Match
	return check
}

func countDistinct(t *table.Table, col string, from, to int) int {
	seen := map[string]bool{}
	for i := from; i < to; i++ {
		if v := t.At(i, col); v.IsPresent() {
			seen[v.Key()] = true
		}
	}
	return len(seen)
}

// CompletenessCheck verifies the arithmetic of a completeness report.
type CompletenessCheck struct {
	Columns    int      `json:"columns" yaml:"columns"`
	Match      bool     `json:"match" yaml:"match"`
	Mismatched []string `json:"mismatched,omitempty" yaml:"mismatched,omitempty"`
}

// validateCompleteness checks present+absent == total for every column and
// that per-source subtotals add up to the overall counts.
func validateCompleteness(r *report.CompletenessReport) *CompletenessCheck {
	check := &CompletenessCheck{Columns: len(r.Columns), Match: true}
	for _, c := range r.Columns {
		ok := c.Overall.Present+c.Overall.Absent == c.Overall.Total && c.Overall.Total == r.Rows
		if len(c.BySource) > 0 {
			present, total := 0, 0
			for _, s := range c.BySource {
				if s.Present+s.Absent != s.Total {
					ok = false
				}
				present += s.Present
				total += s.Total
			}
			if present != c.Overall.Present || total != c.Overall.Total {
				ok = false
			}
		}
		if !ok {
			check.Match = false
			check.Mismatched = append(check.Mismatched, c.Column)
		}
	}
	return check
}
