// Package project renames one source table into the unified column scheme.
package project

import (
	"fmt"

	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/table"
)

// MissingColumnWarning reports a mapping entry whose native column is not in
// the source table. The unified column is still emitted, all absent.
type MissingColumnWarning struct {
	Source  string
	Native  string
	Unified string
}

func (w *MissingColumnWarning) Error() string {
	return fmt.Sprintf("source %s: column %q for %s not found, filled as missing", w.Source, w.Native, w.Unified)
}

// Source identifies the table being projected.
type Source struct {
	// Tag is written to dataset_source on every row (e.g. "METABRIC").
	Tag string
	// Key selects the source's column in each mapping entry (e.g. "metabric").
	Key string
}

// Project selects and renames src's columns following m.
//
// Output columns are the mapping's unified names declared for the source, in
// mapping order, followed by dataset_source. Columns not referenced by the
// mapping are dropped. The row count and row order of src are kept.
//
// A *mapping.IntegrityError is returned, and nothing is produced, when the
// mapping is ambiguous for this source. Missing native columns yield
// *MissingColumnWarning values.
func Project(src *table.Table, s Source, m *mapping.Table) (*table.Table, []error, error) {
	if err := m.ValidateSource(s.Key); err != nil {
		return nil, nil, fmt.Errorf("projecting %s: %w", s.Tag, err)
	}

	renames := m.RenamesFor(s.Key)
	cols := make([]string, 0, len(renames)+1)
	from := make([]int, 0, len(renames))
	var warnings []error
	for _, r := range renames {
		cols = append(cols, r.Unified)
		i, ok := src.ColumnIndex(r.Native)
		if !ok {
			warnings = append(warnings, &MissingColumnWarning{Source: s.Tag, Native: r.Native, Unified: r.Unified})
			i = -1
		}
		from = append(from, i)
	}
	cols = append(cols, table.SourceColumn)

	out, err := table.New(s.Tag, cols)
	if err != nil {
		return nil, nil, fmt.Errorf("projecting %s: %w", s.Tag, err)
	}
	tag := table.Str(s.Tag)
	row := make([]table.Value, len(cols))
	for i := 0; i < src.Len(); i++ {
		in := src.Row(i)
		for j, k := range from {
			if k < 0 {
				row[j] = table.Absent()
				continue
			}
			row[j] = in[k]
		}
		row[len(row)-1] = tag
		if err := out.Append(row); err != nil {
			return nil, nil, err
		}
	}
	return out, warnings, nil
}
