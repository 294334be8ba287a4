// Package consolidate unions projected source tables into the unified table.
package consolidate

import (
	"fmt"

	"github.com/brcamerge/brcamerge/internal/normalize"
	"github.com/brcamerge/brcamerge/internal/table"
)

// Name is the table name given to the unified result.
const Name = "unified"

// Union appends the rows of each table in order. The header is the union of
// the inputs' columns in first-seen order with dataset_source last; cells a
// table does not have are absent. Every input must carry dataset_source.
func Union(tables []*table.Table) (*table.Table, error) {
	var cols []string
	seen := map[string]bool{table.SourceColumn: true}
	for _, t := range tables {
		if !t.HasColumn(table.SourceColumn) {
			return nil, fmt.Errorf("table %s has no %s column", t.Name, table.SourceColumn)
		}
		for _, c := range t.Columns() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	cols = append(cols, table.SourceColumn)

	out, err := table.New(Name, cols)
	if err != nil {
		return nil, err
	}
	row := make([]table.Value, len(cols))
	for _, t := range tables {
		// position of each unified column in t, or -1
		pos := make([]int, len(cols))
		for j, c := range cols {
			if k, ok := t.ColumnIndex(c); ok {
				pos[j] = k
			} else {
				pos[j] = -1
			}
		}
		for i := 0; i < t.Len(); i++ {
			in := t.Row(i)
			for j, k := range pos {
				if k < 0 {
					row[j] = table.Absent()
				} else {
					row[j] = in[k]
				}
			}
			if err := out.Append(row); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Result is the outcome of Consolidate.
type Result struct {
	Table        *table.Table
	Summary      normalize.Summary
	Warnings     []error
	RowsBySource map[string]int
}

// Consolidate unions the projected tables and normalizes the result. The
// same inputs always produce the same table.
func Consolidate(projected []*table.Table, n *normalize.Normalizer) (*Result, error) {
	u, err := Union(projected)
	if err != nil {
		return nil, fmt.Errorf("consolidating: %w", err)
	}
	out, sum, warnings := n.Apply(u)

	rows := map[string]int{}
	for i := 0; i < out.Len(); i++ {
		rows[out.At(i, table.SourceColumn).Text()]++
	}
	return &Result{Table: out, Summary: sum, Warnings: warnings, RowsBySource: rows}, nil
}
