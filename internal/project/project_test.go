package project

import (
	"errors"
	"strings"
	"testing"

	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/table"
)

func metabricTable(t *testing.T) *table.Table {
	t.Helper()
	in := "PATIENT_ID,OS_MONTHS,ER_STATUS,CELLULARITY\nMB-0001,10,Pos,High\nMB-0002,,Neg,Low\nMB-0003,2.5,,\n"
	tb, _, err := table.Read("metabric", strings.NewReader(in), table.ReadOptions{})
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return tb
}

func testMapping() *mapping.Table {
	return mapping.NewTable([]mapping.Entry{
		{Unified: "id_paciente", Category: mapping.Identifier, Columns: map[string]string{"metabric": "PATIENT_ID", "tcga": "bcr_patient_barcode"}},
		{Unified: "overall_survival", Category: mapping.Survival, Columns: map[string]string{"metabric": "OS_MONTHS"}},
		{Unified: "er_status", Category: mapping.Clinical, Columns: map[string]string{"metabric": "ER_STATUS"}},
		{Unified: "pr_status", Category: mapping.Clinical, Columns: map[string]string{"tcga": "pr_status"}},
	})
}

func TestProject(t *testing.T) {
	src := metabricTable(t)
	out, warns, err := Project(src, Source{Tag: "METABRIC", Key: "metabric"}, testMapping())
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("expected no warnings, got %v", warns)
	}

	want := []string{"id_paciente", "overall_survival", "er_status", table.SourceColumn}
	got := out.Columns()
	if len(got) != len(want) {
		t.Fatalf("expected columns %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if out.HasColumn("CELLULARITY") || out.HasColumn("pr_status") {
		t.Error("expected unmapped and other-source columns to be dropped")
	}
	if out.Len() != src.Len() {
		t.Errorf("expected %d rows, got %d", src.Len(), out.Len())
	}
	for i := 0; i < out.Len(); i++ {
		if out.At(i, table.SourceColumn).Text() != "METABRIC" {
			t.Errorf("row %d: expected dataset_source METABRIC, got %q", i, out.At(i, table.SourceColumn).Text())
		}
	}
	if out.At(0, "er_status").Text() != "Pos" {
		t.Errorf("expected er_status Pos, got %q", out.At(0, "er_status").Text())
	}
	if !out.At(1, "overall_survival").IsAbsent() {
		t.Error("expected missing survival to stay absent")
	}
}

func TestProject_MissingNativeColumn(t *testing.T) {
	src := metabricTable(t)
	m := mapping.NewTable([]mapping.Entry{
		{Unified: "id_paciente", Columns: map[string]string{"metabric": "PATIENT_ID"}},
		{Unified: "tumor_size", Columns: map[string]string{"metabric": "TUMOR_SIZE"}},
	})
	out, warns, err := Project(src, Source{Tag: "METABRIC", Key: "metabric"}, m)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(warns) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warns))
	}
	var mw *MissingColumnWarning
	if !errors.As(warns[0], &mw) || mw.Native != "TUMOR_SIZE" || mw.Unified != "tumor_size" {
		t.Errorf("unexpected warning %v", warns[0])
	}
	if !out.HasColumn("tumor_size") {
		t.Fatal("expected tumor_size column to exist")
	}
	if n := out.PresentCount("tumor_size"); n != 0 {
		t.Errorf("expected tumor_size all missing, got %d present", n)
	}
	if out.Len() != src.Len() {
		t.Errorf("expected row count preserved, got %d", out.Len())
	}
}

func TestProject_AmbiguousNativeColumn(t *testing.T) {
	m := mapping.NewTable([]mapping.Entry{
		{Unified: "vital_status", Columns: map[string]string{"tcga": "vital_status"}},
		{Unified: "os_event", Columns: map[string]string{"tcga": "vital_status"}},
	})
	src := table.MustNew("tcga", []string{"vital_status"})
	src.Append([]table.Value{table.Str("Alive")})

	out, _, err := Project(src, Source{Tag: "TCGA", Key: "tcga"}, m)
	if err == nil {
		t.Fatal("expected integrity error")
	}
	if out != nil {
		t.Error("expected no output on integrity error")
	}
	var ie *mapping.IntegrityError
	if !errors.As(err, &ie) {
		t.Errorf("expected *mapping.IntegrityError, got %T", err)
	}
}

func TestProject_OtherSourceAmbiguityIgnored(t *testing.T) {
	m := mapping.NewTable([]mapping.Entry{
		{Unified: "a", Columns: map[string]string{"tcga": "x", "metabric": "PATIENT_ID"}},
		{Unified: "b", Columns: map[string]string{"tcga": "x"}},
	})
	if _, _, err := Project(metabricTable(t), Source{Tag: "METABRIC", Key: "metabric"}, m); err != nil {
		t.Errorf("expected metabric projection to ignore tcga ambiguity, got %v", err)
	}
}

func TestProject_EmptySource(t *testing.T) {
	src := table.MustNew("empty", []string{"PATIENT_ID"})
	out, _, err := Project(src, Source{Tag: "SCANB", Key: "scanb"}, testMapping())
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected 0 rows, got %d", out.Len())
	}
	if cols := out.Columns(); len(cols) != 1 || cols[0] != table.SourceColumn {
		t.Errorf("expected only dataset_source, got %v", cols)
	}
}
