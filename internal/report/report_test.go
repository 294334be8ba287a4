package report

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/table"
)

func unifiedTable() *table.Table {
	t := table.MustNew("unified.csv", []string{"id_paciente", "er_status", "tumor_size", "image_score", table.SourceColumn})
	m := table.MissingSet(nil)
	add := func(cells ...string) {
		row := make([]table.Value, len(cells))
		for i, c := range cells {
			row[i] = table.Parse(c, m)
		}
		t.Append(row)
	}
	add("MB-1", "Positive", "22", "", "METABRIC")
	add("MB-2", "Negative", "", "", "METABRIC")
	add("S-1", "", "15", "0.4", "SCANB")
	add("T-1", "Positive", "30", "", "TCGA")
	add("T-1", "Positive", "", "", "TCGA")
	return t
}

func TestCompute(t *testing.T) {
	r := Compute(unifiedTable(), Options{IdentifierColumn: "id_paciente"})

	if r.Rows != 5 {
		t.Fatalf("expected 5 rows, got %d", r.Rows)
	}
	if r.UniquePatients != 4 {
		t.Errorf("expected 4 unique patients, got %d", r.UniquePatients)
	}
	order := []string{"id_paciente", table.SourceColumn, "er_status", "tumor_size", "image_score"}
	for i, want := range order {
		if r.Columns[i].Column != want {
			t.Errorf("position %d: expected %q, got %q", i, want, r.Columns[i].Column)
		}
	}

	for _, c := range r.Columns {
		if c.Overall.Present+c.Overall.Absent != r.Rows {
			t.Errorf("%s: present+absent = %d, want %d", c.Column, c.Overall.Present+c.Overall.Absent, r.Rows)
		}
		present, total := 0, 0
		for _, s := range c.BySource {
			present += s.Present
			total += s.Total
		}
		if present != c.Overall.Present || total != c.Overall.Total {
			t.Errorf("%s: per-source subtotals %d/%d do not sum to %d/%d",
				c.Column, present, total, c.Overall.Present, c.Overall.Total)
		}
	}

	er := r.Columns[2]
	if er.Overall.Present != 4 || er.Tier != TierHigh {
		t.Errorf("unexpected er_status stats %+v", er)
	}
	if er.BySource[1].Source != "SCANB" || er.BySource[1].Percent != 0 {
		t.Errorf("expected SCANB er_status 0%%, got %+v", er.BySource[1])
	}
	if r.Columns[3].Tier != TierMedium || r.Columns[4].Tier != TierLow {
		t.Errorf("unexpected tiers %s %s", r.Columns[3].Tier, r.Columns[4].Tier)
	}
	if len(r.Sources) != 3 || r.Sources[0].Source != "METABRIC" || r.Sources[0].Rows != 2 {
		t.Errorf("unexpected sources %+v", r.Sources)
	}
}

func TestCompute_DoesNotMutate(t *testing.T) {
	tb := unifiedTable()
	before, _ := table.Fingerprint(tb)
	Compute(tb, Options{})
	after, _ := table.Fingerprint(tb)
	if before != after {
		t.Error("expected Compute to leave the table unchanged")
	}
}

func TestCompute_EmptyTable(t *testing.T) {
	r := Compute(table.MustNew("empty", []string{"a", table.SourceColumn}), Options{})
	for _, c := range r.Columns {
		if c.Overall.Percent != 0 || c.Tier != TierLow {
			t.Errorf("expected 0%% for empty table, got %+v", c)
		}
	}
	if len(r.Sources) != 0 {
		t.Errorf("expected no sources, got %v", r.Sources)
	}
}

func TestCompute_Categories(t *testing.T) {
	r := Compute(unifiedTable(), Options{Categories: map[string]mapping.Category{
		"id_paciente": mapping.Identifier,
		"er_status":   mapping.Clinical,
		"tumor_size":  mapping.Tumor,
		"image_score": mapping.Imaging,
	}})
	if len(r.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(r.Categories))
	}
	if r.Categories[0].Category != "identifier" || r.Categories[0].MeanPercent != 100 {
		t.Errorf("unexpected first category %+v", r.Categories[0])
	}
	if r.Categories[3].Category != "tumor" {
		t.Errorf("expected categories in precedence order, got %+v", r.Categories)
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		present, total int
		want           string
	}{
		{10, 10, TierComplete},
		{8, 10, TierHigh},
		{99, 100, TierHigh},
		{5, 10, TierMedium},
		{79, 100, TierMedium},
		{4, 10, TierLow},
		{0, 0, TierLow},
	}
	for _, tt := range tests {
		if got := Tier(newCounts(tt.present, tt.total)); got != tt.want {
			t.Errorf("Tier(%d/%d) = %s, want %s", tt.present, tt.total, got, tt.want)
		}
	}
}

func TestFormatText(t *testing.T) {
	out := FormatText(Compute(unifiedTable(), Options{IdentifierColumn: "id_paciente"}))
	for _, want := range []string{
		"=== Completeness Report ===",
		"Rows:    5",
		"Unique patients (id_paciente): 4",
		"METABRIC",
		"Completeness 100%: 2 columns",
		"Completeness >=80%: 1 columns",
		"Completeness <50%: 1 columns",
		"er_status  4/5 (80.0%)",
		"SCANB        0/1 (0.0%)",
		"  image_score  1/5 (20.0%)\n    METABRIC     0/2 (0.0%)\n    SCANB        1/1 (100.0%)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Generated:") {
		t.Error("expected no timestamp when GeneratedAt is unset")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "completeness.json")
	r := Compute(unifiedTable(), Options{})
	if err := WriteJSON(r, path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	loaded, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if loaded.Version != "1" || loaded.Rows != 5 {
		t.Errorf("unexpected loaded report %+v", loaded)
	}
	if loaded.Columns[2].BySource[0].Present != 2 {
		t.Errorf("expected embedded counts to round-trip, got %+v", loaded.Columns[2].BySource[0])
	}
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completeness.txt")
	if err := WriteText(Compute(unifiedTable(), Options{}), path); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
}

func TestFormatOverlap(t *testing.T) {
	s := mapping.Overlap([]mapping.SourceColumns{
		{Key: "metabric", Columns: []string{"PATIENT_ID", "ER_STATUS", "GRADE"}},
		{Key: "scanb", Columns: []string{"patient id", "er status"}},
		{Key: "tcga", Columns: []string{"patient_id", "grade"}},
	})
	out := FormatOverlap(s)
	for _, want := range []string{
		"Shared by all sources:       1",
		"[patient_id]",
		"scanb:     patient id",
		"identifier: patient_id",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
