package target

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/brcamerge/brcamerge/internal/table"
)

// ParquetSchema builds a schema with one optional string column per table
// column.
func ParquetSchema(t *table.Table) *parquet.Schema {
	group := parquet.Group{}
	for _, c := range t.Columns() {
		group[c] = parquet.Optional(parquet.String())
	}
	name := t.Name
	if name == "" {
		name = "unified"
	}
	return parquet.NewSchema(name, group)
}

// WriteParquet writes t to path as a Parquet file. The file is written to a
// temporary name and renamed into place.
func WriteParquet(path string, t *table.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeParquet(tmp, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming parquet output: %w", err)
	}
	return nil
}

func writeParquet(f *os.File, t *table.Table) error {
	schema := ParquetSchema(t)

	// Leaf columns are ordered by name in the schema, not by table order.
	leaf := make(map[string]int, t.Width())
	for i, path := range schema.Columns() {
		leaf[path[0]] = i
	}
	cols := t.Columns()
	order := make([]int, len(cols))
	for j, c := range cols {
		order[j] = leaf[c]
	}

	w := parquet.NewWriter(f, schema)
	rows := make([]parquet.Row, 0, 1024)
	flush := func() error {
		if _, err := w.WriteRows(rows); err != nil {
			return fmt.Errorf("writing parquet rows: %w", err)
		}
		rows = rows[:0]
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		row := make(parquet.Row, len(cols))
		for j, v := range t.Row(i) {
			idx := order[j]
			if v.IsAbsent() {
				row[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			row[idx] = parquet.ByteArrayValue([]byte(v.Text())).Level(0, 1, idx)
		}
		rows = append(rows, row)
		if len(rows) == cap(rows) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}
