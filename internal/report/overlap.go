package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brcamerge/brcamerge/internal/mapping"
)

// FormatOverlap renders the exact-name overlap analysis as text.
func FormatOverlap(s mapping.OverlapSummary) string {
	var b strings.Builder

	b.WriteString("=== Column Overlap ===\n")
	b.WriteString(fmt.Sprintf("Distinct normalized columns: %d\n", s.Total))
	b.WriteString(fmt.Sprintf("Shared by 2+ sources:        %d\n", s.Shared))
	b.WriteString(fmt.Sprintf("Shared by all sources:       %d\n\n", s.InAll))

	b.WriteString("Columns per source:\n")
	for _, k := range s.SourceKeys {
		b.WriteString(fmt.Sprintf("  %-10s %d\n", k, s.PerSource[k]))
		counts := s.CategoryCounts[k]
		for _, c := range mapping.Precedence {
			if n := counts[c]; n > 0 {
				b.WriteString(fmt.Sprintf("    %-14s %d\n", c, n))
			}
		}
	}
	b.WriteString("\n")

	writeGroups := func(title string, groups []mapping.Group) {
		b.WriteString(title + "\n")
		for _, g := range groups {
			b.WriteString(fmt.Sprintf("  [%s]\n", g.Unified))
			for _, k := range s.SourceKeys {
				if col, ok := g.Columns[k]; ok {
					b.WriteString(fmt.Sprintf("    %-10s %s\n", k+":", col))
				}
			}
		}
		b.WriteString("\n")
	}
	writeGroups("In all sources:", s.All)
	writeGroups("In some sources:", s.Partial)

	b.WriteString("All-sources columns by category:\n")
	for _, c := range mapping.Precedence {
		var names []string
		for _, g := range s.All {
			if g.Category == c {
				names = append(names, g.Unified)
			}
		}
		if len(names) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s: %s\n", c, strings.Join(names, ", ")))
	}

	return b.String()
}

// WriteOverlap writes the overlap analysis as text.
func WriteOverlap(s mapping.OverlapSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatOverlap(s)), 0o644)
}
