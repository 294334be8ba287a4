package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/table"
)

// Tier labels group columns by overall completeness.
const (
	TierComplete = "100%"
	TierHigh     = ">=80%"
	TierMedium   = "50-79%"
	TierLow      = "<50%"
)

// Tiers lists the tiers in presentation order.
var Tiers = []string{TierComplete, TierHigh, TierMedium, TierLow}

// Counts is a present/absent tally over some set of rows.
type Counts struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

func newCounts(present, total int) Counts {
	c := Counts{Present: present, Absent: total - present, Total: total}
	if total > 0 {
		c.Percent = float64(present) / float64(total) * 100
	}
	return c
}

// Tier classifies a completeness percentage.
func Tier(c Counts) string {
	switch {
	case c.Total > 0 && c.Present == c.Total:
		return TierComplete
	case c.Percent >= 80:
		return TierHigh
	case c.Percent >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// SourceCounts is a column's tally restricted to one dataset_source.
type SourceCounts struct {
	Source string `json:"source"`
	Counts
}

// ColumnStats is the completeness of one unified column.
type ColumnStats struct {
	Column   string         `json:"column"`
	Position int            `json:"position"`
	Category string         `json:"category,omitempty"`
	Tier     string         `json:"tier"`
	Overall  Counts         `json:"overall"`
	BySource []SourceCounts `json:"by_source,omitempty"`
}

// SourceShare is the number of rows contributed by one source.
type SourceShare struct {
	Source  string  `json:"source"`
	Rows    int     `json:"rows"`
	Percent float64 `json:"percent"`
}

// CategorySummary aggregates columns sharing a mapping category.
type CategorySummary struct {
	Category    string  `json:"category"`
	Columns     int     `json:"columns"`
	MeanPercent float64 `json:"mean_percent"`
}

// CompletenessReport is the data-quality audit of a unified table.
type CompletenessReport struct {
	Version          string            `json:"version"`
	GeneratedAt      time.Time         `json:"generated_at,omitempty"`
	Table            string            `json:"table"`
	Rows             int               `json:"rows"`
	IdentifierColumn string            `json:"identifier_column,omitempty"`
	UniquePatients   int               `json:"unique_patients,omitempty"`
	Sources          []SourceShare     `json:"sources"`
	Columns          []ColumnStats     `json:"columns"`
	Categories       []CategorySummary `json:"categories,omitempty"`
}

// Options adds optional context to Compute.
type Options struct {
	// IdentifierColumn, when present in the table, is used to count unique patients.
	IdentifierColumn string
	// Categories tags columns with their mapping category.
	Categories map[string]mapping.Category
}

// Compute builds the report. It reads t without modifying it, and the result
// depends only on t and opt. Columns are ordered by descending overall
// completeness; ties keep the table's column order.
func Compute(t *table.Table, opt Options) *CompletenessReport {
	r := &CompletenessReport{Version: "1", Table: t.Name, Rows: t.Len()}

	// Row indexes per source, sources in first-seen order.
	var sources []string
	rowsOf := map[string][]int{}
	if t.HasColumn(table.SourceColumn) {
		for i := 0; i < t.Len(); i++ {
			s := t.At(i, table.SourceColumn).Text()
			if _, ok := rowsOf[s]; !ok {
				sources = append(sources, s)
			}
			rowsOf[s] = append(rowsOf[s], i)
		}
	}
	for _, s := range sources {
		share := SourceShare{Source: s, Rows: len(rowsOf[s])}
		if t.Len() > 0 {
			share.Percent = float64(share.Rows) / float64(t.Len()) * 100
		}
		r.Sources = append(r.Sources, share)
	}

	if opt.IdentifierColumn != "" && t.HasColumn(opt.IdentifierColumn) {
		r.IdentifierColumn = opt.IdentifierColumn
		seen := map[string]bool{}
		for i := 0; i < t.Len(); i++ {
			if v := t.At(i, opt.IdentifierColumn); v.IsPresent() {
				seen[v.Text()] = true
			}
		}
		r.UniquePatients = len(seen)
	}

	for pos, col := range t.Columns() {
		cs := ColumnStats{
			Column:   col,
			Position: pos,
			Overall:  newCounts(t.PresentCount(col), t.Len()),
		}
		if c, ok := opt.Categories[col]; ok {
			cs.Category = string(c)
		}
		cs.Tier = Tier(cs.Overall)
		for _, s := range sources {
			present := 0
			for _, i := range rowsOf[s] {
				if t.At(i, col).IsPresent() {
					present++
				}
			}
			cs.BySource = append(cs.BySource, SourceCounts{Source: s, Counts: newCounts(present, len(rowsOf[s]))})
		}
		r.Columns = append(r.Columns, cs)
	}
	sort.SliceStable(r.Columns, func(i, j int) bool {
		return r.Columns[i].Overall.Percent > r.Columns[j].Overall.Percent
	})

	if len(opt.Categories) > 0 {
		r.Categories = summarizeCategories(r.Columns)
	}
	return r
}

func summarizeCategories(cols []ColumnStats) []CategorySummary {
	sums := map[string]*CategorySummary{}
	for _, c := range cols {
		if c.Category == "" {
			continue
		}
		s, ok := sums[c.Category]
		if !ok {
			s = &CategorySummary{Category: c.Category}
			sums[c.Category] = s
		}
		s.Columns++
		s.MeanPercent += c.Overall.Percent
	}
	out := make([]CategorySummary, 0, len(sums))
	for _, s := range sums {
		s.MeanPercent /= float64(s.Columns)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := mapping.Rank(mapping.Category(out[i].Category)), mapping.Rank(mapping.Category(out[j].Category))
		if ri != rj {
			return ri < rj
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ByTier groups the report's columns by tier, keeping report order.
func (r *CompletenessReport) ByTier() map[string][]ColumnStats {
	out := map[string][]ColumnStats{}
	for _, c := range r.Columns {
		out[c.Tier] = append(out[c.Tier], c)
	}
	return out
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *CompletenessReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*CompletenessReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &CompletenessReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *CompletenessReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

func fmtCounts(c Counts) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", c.Present, c.Total, c.Percent)
}

// FormatText renders the report as human-readable text.
func FormatText(report *CompletenessReport) string {
	var b strings.Builder

	b.WriteString("=== Completeness Report ===\n")
	if !report.GeneratedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf("Table:   %s\n", report.Table))
	b.WriteString(fmt.Sprintf("Rows:    %d\n", report.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", len(report.Columns)))
	if report.IdentifierColumn != "" {
		b.WriteString(fmt.Sprintf("Unique patients (%s): %d\n", report.IdentifierColumn, report.UniquePatients))
	}
	b.WriteString("\n")

	if len(report.Sources) > 0 {
		b.WriteString("Dataset distribution:\n")
		for _, s := range report.Sources {
			b.WriteString(fmt.Sprintf("  %-12s %6d (%.1f%%)\n", s.Source, s.Rows, s.Percent))
		}
		b.WriteString("\n")
	}

	width := 0
	for _, c := range report.Columns {
		width = max(width, len(c.Column))
	}

	tiers := report.ByTier()
	for _, tier := range Tiers {
		cols := tiers[tier]
		b.WriteString(fmt.Sprintf("Completeness %s: %d columns\n", tier, len(cols)))
		for _, c := range cols {
			b.WriteString(fmt.Sprintf("  %-*s  %s\n", width, c.Column, fmtCounts(c.Overall)))
		}
		b.WriteString("\n")
	}

	if len(report.Sources) > 0 {
		b.WriteString("Per-source breakdown:\n")
		for _, c := range report.Columns {
			b.WriteString(fmt.Sprintf("  %s  %s\n", c.Column, fmtCounts(c.Overall)))
			for _, s := range c.BySource {
				b.WriteString(fmt.Sprintf("    %-12s %s\n", s.Source, fmtCounts(s.Counts)))
			}
		}
		b.WriteString("\n")
	}

	if len(report.Categories) > 0 {
		b.WriteString("By category:\n")
		for _, c := range report.Categories {
			b.WriteString(fmt.Sprintf("  %-14s %3d columns, mean %.1f%%\n", c.Category, c.Columns, c.MeanPercent))
		}
		b.WriteString("\n")
	}

	return b.String()
}
