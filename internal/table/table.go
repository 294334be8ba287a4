// Package table holds the in-memory tabular model shared by every pipeline
// stage: an ordered header and rows of scalar Values with explicit absent
// markers.
package table

import "fmt"

// SourceColumn is the provenance column appended to every projected table.
const SourceColumn = "dataset_source"

// Table is an ordered set of rows over a fixed header. Every row has exactly
// one Value per column.
type Table struct {
	Name    string
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty table. Column names must be unique.
func New(name string, columns []string) (*Table, error) {
	t := &Table{
		Name:    name,
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, c)
		}
		t.index[c] = i
		t.columns[i] = c
	}
	return t, nil
}

// MustNew is New for column sets known to be unique.
func MustNew(name string, columns []string) *Table {
	t, err := New(name, columns)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) Width() int { return len(t.columns) }
func (t *Table) Len() int   { return len(t.rows) }

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Append adds a row. The row is copied.
func (t *Table) Append(row []Value) error {
	if len(row) != len(t.columns) {
		return fmt.Errorf("table %s: row has %d values, header has %d", t.Name, len(row), len(t.columns))
	}
	r := make([]Value, len(row))
	copy(r, row)
	t.rows = append(t.rows, r)
	return nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// At returns the cell at row i, column col. Unknown columns read as absent.
func (t *Table) At(i int, col string) Value {
	j, ok := t.index[col]
	if !ok {
		return Absent()
	}
	return t.rows[i][j]
}

// Set replaces a cell in place.
func (t *Table) Set(i int, col string, v Value) error {
	j, ok := t.index[col]
	if !ok {
		return fmt.Errorf("table %s: unknown column %q", t.Name, col)
	}
	t.rows[i][j] = v
	return nil
}

// Column returns a copy of every value in a column.
func (t *Table) Column(name string) ([]Value, bool) {
	j, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, true
}

// PresentCount returns the number of non-absent cells in a column.
func (t *Table) PresentCount(name string) int {
	j, ok := t.index[name]
	if !ok {
		return 0
	}
	n := 0
	for _, r := range t.rows {
		if r[j].IsPresent() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy that shares nothing with t.
func (t *Table) Clone() *Table {
	c := MustNew(t.Name, t.columns)
	c.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = make([]Value, len(r))
		copy(c.rows[i], r)
	}
	return c
}
