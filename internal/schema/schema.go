// Package schema describes the columns of raw source tables: a per-source
// inventory and the numbered column lists used to review headers by hand.
package schema

import (
	"github.com/brcamerge/brcamerge/internal/colname"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/table"
)

// Inventory holds the column listing of every source.
type Inventory struct {
	Sources []Source `yaml:"sources"`
}

// Source is one raw table's header with per-column statistics.
type Source struct {
	Tag     string   `yaml:"tag"`
	Key     string   `yaml:"key"`
	Path    string   `yaml:"path,omitempty"`
	Rows    int      `yaml:"rows"`
	Columns []Column `yaml:"columns"`
}

// Column describes one header entry.
type Column struct {
	Index      int              `yaml:"index"` // 1-based, as in the numbered list
	Name       string           `yaml:"name"`
	Normalized string           `yaml:"normalized"`
	Category   mapping.Category `yaml:"category"`
	Kind       string           `yaml:"kind"` // number, bool, string, mixed or empty
	Present    int              `yaml:"present"`
}

// Describe builds the inventory entry for one table.
func Describe(tag, key, path string, t *table.Table) Source {
	s := Source{Tag: tag, Key: key, Path: path, Rows: t.Len()}
	for i, name := range t.Columns() {
		vals, _ := t.Column(name)
		s.Columns = append(s.Columns, Column{
			Index:      i + 1,
			Name:       name,
			Normalized: colname.Normalize(name),
			Category:   mapping.Categorize(name),
			Kind:       inferKind(vals),
			Present:    t.PresentCount(name),
		})
	}
	return s
}

func inferKind(vals []table.Value) string {
	var kind table.Kind
	for _, v := range vals {
		if v.IsAbsent() {
			continue
		}
		switch {
		case kind == table.KindAbsent:
			kind = v.Kind()
		case kind != v.Kind():
			return "mixed"
		}
	}
	if kind == table.KindAbsent {
		return "empty"
	}
	return kind.String()
}

// Names returns the column names in header order.
func (s Source) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// SourceColumns converts the inventory into matcher input, in source order.
func (inv *Inventory) SourceColumns() []mapping.SourceColumns {
	out := make([]mapping.SourceColumns, len(inv.Sources))
	for i, s := range inv.Sources {
		out[i] = mapping.SourceColumns{Key: s.Key, Columns: s.Names()}
	}
	return out
}
