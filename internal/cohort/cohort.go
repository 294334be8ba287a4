// Package cohort builds one raw source table from a cohort's part files by
// sequential left joins on the patient key.
package cohort

import (
	"fmt"
	"strings"

	"github.com/brcamerge/brcamerge/internal/table"
)

// Part is one file contributing columns to a cohort table.
type Part struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path"`
	// Key is the part's patient-id column. For transposed parts it names the
	// column created from the former header.
	Key string `yaml:"key"`
	// RenameKey renames Key before joining, so every part shares the base key.
	RenameKey string `yaml:"rename_key,omitempty"`
	// Suffix is appended as "_<suffix>" to columns that collide with columns
	// already in the assembled table. Defaults to Name.
	Suffix    string `yaml:"suffix,omitempty"`
	Delimiter string `yaml:"delimiter,omitempty"`
	// Transpose turns a features-as-rows matrix into one row per sample.
	// IndexColumn holds the feature names that become the new header.
	Transpose   bool   `yaml:"transpose,omitempty"`
	IndexColumn string `yaml:"index_column,omitempty"`
}

// JoinKey is the key column name after renaming.
func (p Part) JoinKey() string {
	if p.RenameKey != "" {
		return p.RenameKey
	}
	return p.Key
}

func (p Part) label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Path
}

func (p Part) suffix() string {
	if p.Suffix != "" {
		return p.Suffix
	}
	return p.Name
}

// Validate checks the part declaration without touching the file.
func (p Part) Validate() error {
	switch {
	case p.Path == "":
		return fmt.Errorf("part %s: path is required", p.label())
	case p.Key == "":
		return fmt.Errorf("part %s: key is required", p.label())
	case p.Transpose && p.IndexColumn == "":
		return fmt.Errorf("part %s: transpose requires index_column", p.label())
	}
	return nil
}

// DuplicateKeyWarning reports a key seen more than once in a joined part.
// The first occurrence is used.
type DuplicateKeyWarning struct {
	Part string
	Key  string
	Row  int
}

func (w *DuplicateKeyWarning) Error() string {
	return fmt.Sprintf("part %s row %d: duplicate key %q ignored", w.Part, w.Row, w.Key)
}

// Load reads a part file and applies its transpose and key rename.
func Load(p Part, missing []string) (*table.Table, []error, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	comma, err := table.ParseDelimiter(p.Delimiter)
	if err != nil {
		return nil, nil, fmt.Errorf("part %s: %w", p.label(), err)
	}
	t, warnings, err := table.ReadFile(p.Path, table.ReadOptions{Comma: comma, MissingTokens: missing})
	if err != nil {
		return nil, nil, fmt.Errorf("part %s: %w", p.label(), err)
	}
	if p.Name != "" {
		t.Name = p.Name
	}
	if p.Transpose {
		if t, err = Transpose(t, p.IndexColumn, p.Key); err != nil {
			return nil, nil, fmt.Errorf("part %s: %w", p.label(), err)
		}
	}
	if !t.HasColumn(p.Key) {
		return nil, nil, fmt.Errorf("part %s: key column %q not found", p.label(), p.Key)
	}
	if p.RenameKey != "" && p.RenameKey != p.Key {
		if t, err = rename(t, map[string]string{p.Key: p.RenameKey}); err != nil {
			return nil, nil, fmt.Errorf("part %s: %w", p.label(), err)
		}
	}
	return t, warnings, nil
}

// Transpose turns each non-index column of t into a row. The new header is
// keyColumn followed by the values of indexColumn; keyColumn holds the former
// column names. Repeated feature names get ".1", ".2" suffixes.
func Transpose(t *table.Table, indexColumn, keyColumn string) (*table.Table, error) {
	idx, ok := t.Column(indexColumn)
	if !ok {
		return nil, fmt.Errorf("index column %q not found", indexColumn)
	}
	header := []string{keyColumn}
	seen := map[string]bool{keyColumn: true}
	for i, v := range idx {
		base := v.Text()
		if v.IsAbsent() {
			base = fmt.Sprintf("row_%d", i+1)
		}
		name := base
		for n := 1; seen[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		seen[name] = true
		header = append(header, name)
	}

	out, err := table.New(t.Name, header)
	if err != nil {
		return nil, err
	}
	row := make([]table.Value, len(header))
	for _, col := range t.Columns() {
		if col == indexColumn {
			continue
		}
		vals, _ := t.Column(col)
		row[0] = table.Str(col)
		copy(row[1:], vals)
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Join left-joins part onto base on key. Base rows keep their order and
// count; base rows without a match get absent values for part's columns.
// Part columns that collide with base columns are renamed "<col>_<suffix>".
func Join(base, part *table.Table, key, suffix string) (*table.Table, []error, error) {
	if !base.HasColumn(key) {
		return nil, nil, fmt.Errorf("joining %s: base has no key column %q", part.Name, key)
	}
	if !part.HasColumn(key) {
		return nil, nil, fmt.Errorf("joining %s: key column %q not found", part.Name, key)
	}
	if suffix == "" {
		suffix = part.Name
	}

	cols := base.Columns()
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c] = true
	}
	var from []int
	for j, c := range part.Columns() {
		if c == key {
			continue
		}
		name := c
		if taken[name] {
			name = c + "_" + suffix
			for n := 2; taken[name]; n++ {
				name = fmt.Sprintf("%s_%s%d", c, suffix, n)
			}
		}
		taken[name] = true
		cols = append(cols, name)
		from = append(from, j)
	}

	var warnings []error
	lookup := make(map[string]int, part.Len())
	for i := 0; i < part.Len(); i++ {
		v := part.At(i, key)
		if v.IsAbsent() {
			continue
		}
		k := v.Key()
		if _, dup := lookup[k]; dup {
			warnings = append(warnings, &DuplicateKeyWarning{Part: part.Name, Key: v.Text(), Row: i + 1})
			continue
		}
		lookup[k] = i
	}

	out, err := table.New(base.Name, cols)
	if err != nil {
		return nil, nil, fmt.Errorf("joining %s: %w", part.Name, err)
	}
	width := base.Width()
	row := make([]table.Value, len(cols))
	for i := 0; i < base.Len(); i++ {
		copy(row, base.Row(i))
		match := -1
		if v := base.At(i, key); v.IsPresent() {
			if m, ok := lookup[v.Key()]; ok {
				match = m
			}
		}
		var prow []table.Value
		if match >= 0 {
			prow = part.Row(match)
		}
		for n, j := range from {
			if prow == nil {
				row[width+n] = table.Absent()
				continue
			}
			row[width+n] = prow[j]
		}
		if err := out.Append(row); err != nil {
			return nil, nil, err
		}
	}
	return out, warnings, nil
}

// Loaded pairs a part declaration with its decoded table.
type Loaded struct {
	Part  Part
	Table *table.Table
}

// Assemble joins parts in order onto the first one. Every part must share the
// first part's join key.
func Assemble(name string, parts []Loaded) (*table.Table, []error, error) {
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("cohort %s: no parts", name)
	}
	key := parts[0].Part.JoinKey()
	for _, l := range parts[1:] {
		if k := l.Part.JoinKey(); k != key {
			return nil, nil, fmt.Errorf("cohort %s: part %s joins on %q, base uses %q (set rename_key)",
				name, l.Part.label(), k, key)
		}
	}

	out := parts[0].Table.Clone()
	out.Name = name
	var warnings []error
	for _, l := range parts[1:] {
		suffix := l.Part.suffix()
		if suffix == "" {
			suffix = strings.ToLower(l.Table.Name)
		}
		joined, w, err := Join(out, l.Table, key, suffix)
		if err != nil {
			return nil, nil, fmt.Errorf("cohort %s: %w", name, err)
		}
		warnings = append(warnings, w...)
		out = joined
	}
	return out, warnings, nil
}

func rename(t *table.Table, names map[string]string) (*table.Table, error) {
	cols := t.Columns()
	for i, c := range cols {
		if n, ok := names[c]; ok {
			cols[i] = n
		}
	}
	out, err := table.New(t.Name, cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.Len(); i++ {
		if err := out.Append(t.Row(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
