// Package validation re-checks a finished consolidation run against its
// inputs: row counts, projected columns, sampled row values and completeness
// subtotals.
package validation

import (
	"time"

	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/report"
	"github.com/brcamerge/brcamerge/internal/table"
)

const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPartial = "PARTIAL"
)

// Result holds the outcome of post-run validation.
type Result struct {
	Status            string             `json:"status" yaml:"status"` // PASS, FAIL, PARTIAL
	Sources           []SourceResult     `json:"sources" yaml:"sources"`
	UnifiedRows       *RowCountCheck     `json:"unified_rows,omitempty" yaml:"unified_rows,omitempty"`
	CompletenessCheck *CompletenessCheck `json:"completeness,omitempty" yaml:"completeness,omitempty"`
	StartedAt         time.Time          `json:"started_at" yaml:"started_at"`
	CompletedAt       time.Time          `json:"completed_at" yaml:"completed_at"`
}

// SourceResult holds the checks for one source.
type SourceResult struct {
	Name           string          `json:"name" yaml:"name"`
	RowCountCheck  *RowCountCheck  `json:"row_count_check,omitempty" yaml:"row_count_check,omitempty"`
	ColumnCheck    *ColumnCheck    `json:"column_check,omitempty" yaml:"column_check,omitempty"`
	SampleCheck    *SampleCheck    `json:"sample_check,omitempty" yaml:"sample_check,omitempty"`
	AggregateCheck *AggregateCheck `json:"aggregate_check,omitempty" yaml:"aggregate_check,omitempty"`
	Status         string          `json:"status" yaml:"status"`
}

// SourceRun is one source as it went through the pipeline.
type SourceRun struct {
	Tag       string
	Key       string
	Raw       *table.Table
	Projected *table.Table
}

// Validator checks one run. Sources must be in consolidation order.
type Validator struct {
	Sources []SourceRun
	Mapping *mapping.Table
	Unified *table.Table
	Report  *report.CompletenessReport
	// IdentifierColumn is compared by distinct count when present.
	IdentifierColumn string
	// Normalized lists columns rewritten by value normalization; sampled rows
	// are not compared on them.
	Normalized []string
	SampleSize int
	Callback   func(source, checkType string, passed bool)
}

// Validate runs every check. It never fails; problems are reported in the
// result.
func (v *Validator) Validate() *Result {
	result := &Result{StartedAt: time.Now()}

	offset := 0
	for _, s := range v.Sources {
		sr := SourceResult{Name: s.Tag, Status: StatusPass}

		rc := v.validateRowCount(s)
		sr.RowCountCheck = rc
		v.record(&sr, "row_count", rc.Match)

		cc := v.validateColumns(s)
		sr.ColumnCheck = cc
		v.record(&sr, "columns", cc.Match)

		sc := v.validateSample(s, offset)
		sr.SampleCheck = sc
		v.record(&sr, "sample", sc.MismatchCount == 0)

		ac := v.validateAggregates(s, offset)
		sr.AggregateCheck = ac
		v.record(&sr, "aggregate", ac.Match)

		result.Sources = append(result.Sources, sr)
		if s.Projected != nil {
			offset += s.Projected.Len()
		}
	}

	result.UnifiedRows = v.validateUnifiedRows()
	v.notify("unified", "row_count", result.UnifiedRows.Match)
	if v.Report != nil {
		result.CompletenessCheck = validateCompleteness(v.Report)
		v.notify("unified", "completeness", result.CompletenessCheck.Match)
	}

	result.CompletedAt = time.Now()
	result.Status = computeOverallStatus(result)
	return result
}

func (v *Validator) record(sr *SourceResult, checkType string, passed bool) {
	if !passed {
		sr.Status = StatusFail
	}
	v.notify(sr.Name, checkType, passed)
}

func (v *Validator) notify(source, checkType string, passed bool) {
	if v.Callback != nil {
		v.Callback(source, checkType, passed)
	}
}

func computeOverallStatus(r *Result) string {
	unifiedOK := r.UnifiedRows == nil || r.UnifiedRows.Match
	if r.CompletenessCheck != nil && !r.CompletenessCheck.Match {
		unifiedOK = false
	}
	failCount := 0
	for _, s := range r.Sources {
		if s.Status == StatusFail {
			failCount++
		}
	}
	switch {
	case failCount == 0 && unifiedOK:
		return StatusPass
	case failCount == len(r.Sources) && !unifiedOK:
		return StatusFail
	}
	return StatusPartial
}

// Failures lists a short description of every failed check.
func (r *Result) Failures() []string {
	var out []string
	for _, s := range r.Sources {
		if s.RowCountCheck != nil && !s.RowCountCheck.Match {
			out = append(out, s.Name+": "+s.RowCountCheck.Message)
		}
		if s.ColumnCheck != nil && !s.ColumnCheck.Match {
			out = append(out, s.Name+": "+s.ColumnCheck.Message)
		}
		if s.SampleCheck != nil && s.SampleCheck.MismatchCount > 0 {
			out = append(out, s.Name+": sampled rows differ from the unified table")
		}
		if s.AggregateCheck != nil && !s.AggregateCheck.Match {
			out = append(out, s.Name+": distinct identifier count changed")
		}
	}
	if r.UnifiedRows != nil && !r.UnifiedRows.Match {
		out = append(out, "unified: "+r.UnifiedRows.Message)
	}
	if r.CompletenessCheck != nil && !r.CompletenessCheck.Match {
		out = append(out, "unified: completeness subtotals do not add up")
	}
	return out
}
