package target

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/brcamerge/brcamerge/internal/table"
)

const unifiedCSV = `id_paciente,edad,er_status,dataset_source
MB-0001,55,1,METABRIC
MB-0002,,0,METABRIC
GSM1,61.5,True,SCANB
TCGA-01,,,TCGA
`

func unified(t *testing.T) *table.Table {
	t.Helper()
	tbl, _, err := table.Read("unified", strings.NewReader(unifiedCSV), table.ReadOptions{})
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return tbl
}

func TestSQLiteWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "unified.db")
	w, err := NewSQLiteWriter(ctx, path, "")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	defer w.Close(ctx)

	tbl := unified(t)
	n, err := w.Write(ctx, tbl)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 rows written, got %d", n)
	}

	// A second write replaces the table.
	if _, err := w.Write(ctx, tbl); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	count, err := w.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("expected 4 rows after rewrite, got %d", count)
	}

	var nulls int
	if err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "unified" WHERE "edad" IS NULL`).Scan(&nulls); err != nil {
		t.Fatal(err)
	}
	if nulls != 2 {
		t.Errorf("expected absent ages stored as NULL, got %d NULLs", nulls)
	}

	distinct, err := w.CountDistinct(ctx, "dataset_source")
	if err != nil {
		t.Fatal(err)
	}
	if distinct != 3 {
		t.Errorf("expected 3 distinct sources, got %d", distinct)
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "unified.parquet")
	if err := WriteParquet(path, unified(t)); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		t.Fatalf("opening parquet: %v", err)
	}
	if pf.NumRows() != 4 {
		t.Errorf("expected 4 rows, got %d", pf.NumRows())
	}
	var names []string
	for _, field := range pf.Schema().Fields() {
		names = append(names, field.Name())
		if !field.Optional() {
			t.Errorf("expected column %s to be optional", field.Name())
		}
	}
	if len(names) != 4 {
		t.Errorf("expected 4 columns, got %v", names)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the parquet file in the output directory, got %d entries", len(entries))
	}
}

func TestDocument(t *testing.T) {
	tbl := unified(t)

	doc := Document(tbl, 1)
	if len(doc) != 3 {
		t.Fatalf("expected absent edad to be omitted, got %v", doc)
	}
	if doc[0].Key != "id_paciente" || doc[0].Value != "MB-0002" {
		t.Errorf("unexpected first field %v", doc[0])
	}
	if doc[1].Key != "er_status" || doc[1].Value != float64(0) {
		t.Errorf("expected numeric er_status, got %v", doc[1])
	}

	doc = Document(tbl, 2)
	want := bson.D{
		{Key: "id_paciente", Value: "GSM1"},
		{Key: "edad", Value: 61.5},
		{Key: "er_status", Value: true},
		{Key: "dataset_source", Value: "SCANB"},
	}
	if len(doc) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(doc))
	}
	for i := range want {
		if doc[i] != want[i] {
			t.Errorf("field %d: expected %v, got %v", i, want[i], doc[i])
		}
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	tbl := unified(t)
	ok := &MockWriter{SinkName: "ok"}
	short := &MockWriter{SinkName: "short", Drop: 1}
	broken := &MockWriter{SinkName: "broken", WriteErr: errors.New("connection refused")}

	results, err := Run(ctx, []Writer{ok, short, broken}, tbl)
	if err == nil {
		t.Fatal("expected an error for failing sinks")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || results[0].Written != 4 {
		t.Errorf("expected ok sink to pass, got %+v", results[0])
	}
	if results[1].OK() || !strings.Contains(results[1].Error, "stored 3 rows") {
		t.Errorf("expected row count mismatch, got %+v", results[1])
	}
	if results[2].OK() || !strings.Contains(results[2].Error, "connection refused") {
		t.Errorf("expected write error, got %+v", results[2])
	}
	if ok.Written != tbl {
		t.Error("expected ok sink to receive the table")
	}

	if err := CloseAll(ctx, []Writer{ok, short}); err != nil {
		t.Fatal(err)
	}
	if !ok.Closed || !short.Closed {
		t.Error("expected all writers closed")
	}
}

func TestSplitQualified(t *testing.T) {
	if got := splitQualified("public.unified"); len(got) != 2 || got[0] != "public" || got[1] != "unified" {
		t.Errorf("unexpected identifier %v", got)
	}
	if got := splitQualified("unified").Sanitize(); got != `"unified"` {
		t.Errorf("unexpected sanitized name %s", got)
	}
}
