package validation

// SampleCheck holds the result of sample-based validation.
type SampleCheck struct {
	SampleSize    int              `json:"sample_size" yaml:"sample_size"`
	Checked       int              `json:"checked" yaml:"checked"`
	MismatchCount int              `json:"mismatch_count" yaml:"mismatch_count"`
	Mismatches    []SampleMismatch `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
}

// SampleMismatch describes a cell that differs between a projected row and
// its unified row.
type SampleMismatch struct {
	Row          int    `json:"row" yaml:"row"` // 0-based row in the projection
	Column       string `json:"column" yaml:"column"`
	SourceValue  string `json:"source_value" yaml:"source_value"`
	UnifiedValue string `json:"unified_value" yaml:"unified_value"`
}

const maxReportedMismatches = 20

// validateSample compares evenly spaced projected rows with the unified rows
// at the same position in the source's block. Columns touched by value
// normalization are skipped.
func (v *Validator) validateSample(s SourceRun, offset int) *SampleCheck {
	sampleSize := v.SampleSize
	if sampleSize <= 0 {
		sampleSize = 100
	}
	check := &SampleCheck{SampleSize: sampleSize}
	if s.Projected == nil || v.Unified == nil {
		return check
	}

	skip := map[string]bool{}
	for _, c := range v.Normalized {
		skip[c] = true
	}

	n := s.Projected.Len()
	step := 1
	if n > sampleSize {
		step = n / sampleSize
	}
	cols := s.Projected.Columns()
	for i := 0; i < n && check.Checked < sampleSize; i += step {
		check.Checked++
		u := offset + i
		for _, c := range cols {
			if skip[c] {
				continue
			}
			pv := s.Projected.At(i, c)
			var uv string
			match := false
			if u < v.Unified.Len() {
				got := v.Unified.At(u, c)
				uv = got.Text()
				match = got.Equal(pv)
			}
			if match {
				continue
			}
			check.MismatchCount++
			if len(check.Mismatches) < maxReportedMismatches {
				check.Mismatches = append(check.Mismatches, SampleMismatch{
					Row: i, Column: c, SourceValue: pv.Text(), UnifiedValue: uv,
				})
			}
		}
	}
	return check
}
