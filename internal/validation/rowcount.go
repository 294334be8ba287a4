package validation

import "fmt"

// RowCountCheck holds the result of a row count comparison.
type RowCountCheck struct {
	Expected int    `json:"expected" yaml:"expected"`
	Actual   int    `json:"actual" yaml:"actual"`
	Match    bool   `json:"match" yaml:"match"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

func newRowCountCheck(expected, actual int) *RowCountCheck {
	check := &RowCountCheck{Expected: expected, Actual: actual, Match: expected == actual}
	if !check.Match {
		check.Message = fmt.Sprintf("count mismatch: expected=%d, actual=%d (diff=%d)",
			expected, actual, expected-actual)
	}
	return check
}

// validateRowCount compares the raw source rows with the projected rows.
// Projection never filters or fans out rows.
func (v *Validator) validateRowCount(s SourceRun) *RowCountCheck {
	if s.Raw == nil || s.Projected == nil {
		return &RowCountCheck{Message: "source or projection missing"}
	}
	return newRowCountCheck(s.Raw.Len(), s.Projected.Len())
}

// validateUnifiedRows checks that the unified table holds exactly the
// projected rows.
func (v *Validator) validateUnifiedRows() *RowCountCheck {
	sum := 0
	for _, s := range v.Sources {
		if s.Projected != nil {
			sum += s.Projected.Len()
		}
	}
	actual := 0
	if v.Unified != nil {
		actual = v.Unified.Len()
	}
	return newRowCountCheck(sum, actual)
}
