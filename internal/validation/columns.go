package validation

import (
	"fmt"
	"strings"

	"github.com/brcamerge/brcamerge/internal/table"
)

// ColumnCheck verifies that a projection only holds declared unified names.
type ColumnCheck struct {
	Declared   int      `json:"declared" yaml:"declared"`
	Projected  int      `json:"projected" yaml:"projected"`
	Undeclared []string `json:"undeclared,omitempty" yaml:"undeclared,omitempty"`
	Match      bool     `json:"match" yaml:"match"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// validateColumns checks projected columns against the mapping's unified
// names for the source, plus dataset_source. An undeclared column would be a
// native column leaking through un-renamed.
func (v *Validator) validateColumns(s SourceRun) *ColumnCheck {
	check := &ColumnCheck{Match: true}
	if s.Projected == nil || v.Mapping == nil {
		check.Match = false
		check.Message = "projection or mapping missing"
		return check
	}
	declared := map[string]bool{table.SourceColumn: true}
	for _, r := range v.Mapping.RenamesFor(s.Key) {
		declared[r.Unified] = true
	}
	check.Declared = len(declared) - 1

	cols := s.Projected.Columns()
	check.Projected = len(cols)
	for _, c := range cols {
		if !declared[c] {
			check.Undeclared = append(check.Undeclared, c)
		}
	}
	if !s.Projected.HasColumn(table.SourceColumn) {
		check.Undeclared = append(check.Undeclared, "(missing "+table.SourceColumn+")")
	}
	if len(check.Undeclared) > 0 {
		check.Match = false
		check.Message = fmt.Sprintf("undeclared columns: %s", strings.Join(check.Undeclared, ", "))
	}
	return check
}
