package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brcamerge/brcamerge/internal/cohort"
	"github.com/brcamerge/brcamerge/internal/config"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/report"
	"github.com/brcamerge/brcamerge/internal/state"
	"github.com/brcamerge/brcamerge/internal/table"
	"github.com/brcamerge/brcamerge/internal/target"
	"github.com/brcamerge/brcamerge/internal/validation"
)

const projectYAML = `version: 1
sources:
  - tag: METABRIC
    path: data/metabric.csv
  - tag: SCANB
    path: data/scanb.tsv
    delimiter: tab
  - tag: TCGA
    path: data/tcga.csv
mapping: mapeo_columnas.yaml
output:
  directory: out
  parquet: unified.parquet
`

const mappingYAML = `# reviewed mapping
id_paciente:
  metabric: PATIENT_ID
  scanb: Sample
  tcga: Patient_ID
  tipo: identifier
overall_survival:
  metabric: OS_MONTHS
  scanb: OS_years
  tcga: days_to_death
  tipo: survival
er_status:
  metabric: ER_STATUS
  scanb: ER
  tcga: er_status_by_ihc
  tipo: clinical
edad:
  metabric: AGE_AT_DIAGNOSIS
  scanb: Age
  tcga: null
  tipo: demographic
notes:
  author: someone
`

var fixtures = map[string]string{
	"data/metabric.csv": "PATIENT_ID,AGE_AT_DIAGNOSIS,OS_MONTHS,ER_STATUS,CLAUDIN_SUBTYPE\n" +
		"MB-0001,75.65,140.5,Positive,claudin-low\n" +
		"MB-0002,43.19,84.63,Pos,LumA\n" +
		"MB-0003,48.87,,Neg,LumB\n",
	"data/scanb.tsv": "Sample\tAge\tOS_years\tER\n" +
		"GSM1\t62\t5.2\t1\n" +
		"GSM2\t55\t\t0\n",
	"data/tcga.csv": "Patient_ID,days_to_death,er_status_by_ihc,race\n" +
		"TCGA-A1,1200,Positive,white\n" +
		"TCGA-A2,NA,Negative,asian\n",
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"brcamerge.yaml": projectYAML, "mapeo_columnas.yaml": mappingYAML}
	for k, v := range fixtures {
		files[k] = v
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "brcamerge.yaml")
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfgPath := writeProject(t)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return New(cfg, cfgPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, "brcamerge.yaml", slog.Default())
	if e.Config != cfg {
		t.Error("Config not set")
	}
	if e.OpenSinks == nil {
		t.Error("OpenSinks not set")
	}
}

func TestLoadSources_KeepsConfigOrder(t *testing.T) {
	e := testEngine(t)
	sources, err := e.LoadSources(context.Background())
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	want := []string{"METABRIC", "SCANB", "TCGA"}
	for i, s := range sources {
		if s.Table.Name != want[i] {
			t.Errorf("source %d: expected %s, got %s", i, want[i], s.Table.Name)
		}
		if s.File.Fingerprint == "" {
			t.Errorf("source %s: expected fingerprint", s.Config.Tag)
		}
	}
	if sources[1].Table.Width() != 4 {
		t.Errorf("expected tab-delimited SCANB to have 4 columns, got %d", sources[1].Table.Width())
	}
}

func TestConsolidate(t *testing.T) {
	e := testEngine(t)
	var steps []state.Step
	e.Progress = func(s state.Step) { steps = append(steps, s) }

	run, err := e.Consolidate(context.Background(), ConsolidateOptions{})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if run.UpToDate {
		t.Fatal("first run should not be up to date")
	}

	u := run.Result.Table
	if u.Len() != 7 {
		t.Fatalf("expected 7 unified rows, got %d", u.Len())
	}
	wantCols := "id_paciente,overall_survival,er_status,edad,dataset_source"
	if got := strings.Join(u.Columns(), ","); got != wantCols {
		t.Errorf("expected columns %s, got %s", wantCols, got)
	}
	if got := u.At(0, "overall_survival").Text(); got != "4276.82" {
		t.Errorf("expected METABRIC survival in days 4276.82, got %q", got)
	}
	if got := u.At(3, "overall_survival").Text(); got != "1899.3" {
		t.Errorf("expected SCANB survival in days 1899.3, got %q", got)
	}
	if got := u.At(1, "er_status").Text(); got != "Positive" {
		t.Errorf("expected Pos recoded to Positive, got %q", got)
	}
	if got := u.At(4, "er_status").Text(); got != "Negative" {
		t.Errorf("expected SCANB 0 recoded to Negative, got %q", got)
	}
	if !u.At(5, "edad").IsAbsent() {
		t.Error("expected TCGA edad to be absent")
	}

	m := run.Manifest
	if m.Status != state.StatusComplete {
		t.Errorf("expected complete manifest, got %s (%s)", m.Status, m.Error)
	}
	if m.Validation == nil || m.Validation.Status != validation.StatusPass {
		t.Errorf("expected validation to pass, got %+v", m.Validation)
	}
	if !m.IsStepComplete(state.StepWrite) || m.Steps[state.StepSinks].Status != "skipped" {
		t.Errorf("unexpected steps %+v", m.Steps)
	}
	if len(steps) != 6 {
		t.Errorf("expected 6 stages reported, got %v", steps)
	}

	for _, name := range []string{"unified.csv", "unified.parquet", "completeness.txt", "completeness.json", state.FileName} {
		if _, err := os.Stat(e.Config.OutputPath(name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(e.Config.Output.Directory, ".brcamerge.lock")); !os.IsNotExist(err) {
		t.Error("expected lock to be released")
	}

	written, _, err := table.ReadFile(e.Config.OutputPath("unified.csv"), table.ReadOptions{Comma: ','})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := table.Fingerprint(u)
	got, _ := table.Fingerprint(written)
	if want != got {
		t.Error("expected written CSV to match the unified table")
	}

	rep, err := report.ReadJSON(e.Config.OutputPath("completeness.json"))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rows != 7 || rep.UniquePatients != 7 {
		t.Errorf("unexpected report rows=%d patients=%d", rep.Rows, rep.UniquePatients)
	}
}

func TestConsolidate_UpToDateAndForce(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	second, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.UpToDate || second.Manifest.RunID != first.Manifest.RunID {
		t.Error("expected unchanged inputs to skip the run")
	}

	forced, err := e.Consolidate(ctx, ConsolidateOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if forced.UpToDate || forced.Manifest.RunID == first.Manifest.RunID {
		t.Error("expected Force to start a new run")
	}

	// Touching an input invalidates the manifest.
	path := e.Config.Sources[0].Path
	data, _ := os.ReadFile(path)
	if err := os.WriteFile(path, append(data, []byte("MB-0004,50,12,Neg,LumA\n")...), 0o644); err != nil {
		t.Fatal(err)
	}
	rerun, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rerun.UpToDate || rerun.Result.Table.Len() != 8 {
		t.Error("expected a changed input to trigger a new run")
	}
}

func TestConsolidate_MappingIntegrityIsFatal(t *testing.T) {
	e := testEngine(t)
	bad := mappingYAML + "edad_2:\n  metabric: AGE_AT_DIAGNOSIS\n  tipo: demographic\n"
	if err := os.WriteFile(e.Config.Mapping, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	run, err := e.Consolidate(context.Background(), ConsolidateOptions{})
	var ie *mapping.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if run.Manifest.Status != state.StatusFailed {
		t.Errorf("expected failed manifest, got %s", run.Manifest.Status)
	}
	if _, err := os.Stat(e.Config.OutputPath("unified.csv")); !os.IsNotExist(err) {
		t.Error("expected no unified table after a fatal error")
	}
	saved, err := e.Status()
	if err != nil || saved == nil || saved.Status != state.StatusFailed {
		t.Errorf("expected failed manifest on disk, got %+v (%v)", saved, err)
	}
}

func TestConsolidate_MissingColumnWarns(t *testing.T) {
	e := testEngine(t)
	extra := mappingYAML + "grado:\n  metabric: GRADE\n  tipo: clinical\n"
	if err := os.WriteFile(e.Config.Mapping, []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}
	run, err := e.Consolidate(context.Background(), ConsolidateOptions{})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if run.Manifest.Warnings != 1 {
		t.Errorf("expected 1 warning, got %d", run.Manifest.Warnings)
	}
	if run.Result.Table.PresentCount("grado") != 0 {
		t.Error("expected grado to be all absent")
	}
}

func TestConsolidate_Sinks(t *testing.T) {
	e := testEngine(t)
	e.Config.Sinks.SQLite = &config.SQLiteSink{Path: filepath.Join(t.TempDir(), "unused.db")}
	ok := &target.MockWriter{SinkName: "ok"}
	short := &target.MockWriter{SinkName: "short", Drop: 2}
	e.OpenSinks = func(context.Context) ([]target.Writer, error) {
		return []target.Writer{ok, short}, nil
	}

	run, err := e.Consolidate(context.Background(), ConsolidateOptions{})
	if err == nil {
		t.Fatal("expected error from short sink")
	}
	if len(run.Sinks) != 2 || !run.Sinks[0].OK() || run.Sinks[1].OK() {
		t.Errorf("unexpected sink results %+v", run.Sinks)
	}
	if !ok.Closed || !short.Closed {
		t.Error("expected sinks to be closed")
	}
	for _, name := range []string{"unified.csv", ".unified.csv.staged", "unified.parquet", ".unified.parquet.staged"} {
		if _, err := os.Stat(e.Config.OutputPath(name)); !os.IsNotExist(err) {
			t.Errorf("expected no %s after a failed sink", name)
		}
	}
}

func TestConsolidate_FailedRunKeepsPreviousOutput(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	if _, err := e.Consolidate(ctx, ConsolidateOptions{}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(e.Config.OutputPath("unified.csv"))
	if err != nil {
		t.Fatal(err)
	}

	e.OpenSinks = func(context.Context) ([]target.Writer, error) {
		return []target.Writer{&target.MockWriter{SinkName: "short", Drop: 1}}, nil
	}
	e.Config.Sinks.SQLite = &config.SQLiteSink{Path: filepath.Join(t.TempDir(), "unused.db")}
	if _, err := e.Consolidate(ctx, ConsolidateOptions{Force: true}); err == nil {
		t.Fatal("expected error from short sink")
	}
	after, err := os.ReadFile(e.Config.OutputPath("unified.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("expected the previous unified CSV to survive a failed run")
	}
}

func TestConsolidate_SettingsChangeReruns(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Manifest.Settings == "" {
		t.Fatal("expected the manifest to record a settings fingerprint")
	}

	e.Config.Normalization.Conversions[0].Factor = 1
	rerun, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rerun.UpToDate || rerun.Manifest.RunID == first.Manifest.RunID {
		t.Fatal("expected a changed conversion factor to trigger a new run")
	}
	if got := rerun.Result.Table.At(0, "overall_survival").Text(); got != "140.5" {
		t.Errorf("expected the new factor to apply, got %q", got)
	}
	if rerun.Manifest.Settings == first.Manifest.Settings {
		t.Error("expected a new settings fingerprint")
	}

	e.Config.MissingTokens = append(e.Config.MissingTokens, "n/a")
	again, err := e.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if again.UpToDate {
		t.Error("expected changed missing tokens to trigger a new run")
	}
}

func TestConsolidate_SQLiteSink(t *testing.T) {
	e := testEngine(t)
	e.Config.Sinks.SQLite = &config.SQLiteSink{Path: filepath.Join(t.TempDir(), "unified.db"), Table: "pacientes"}

	run, err := e.Consolidate(context.Background(), ConsolidateOptions{})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(run.Sinks) != 1 || run.Sinks[0].Sink != "sqlite" || run.Sinks[0].Written != 7 {
		t.Errorf("unexpected sink results %+v", run.Sinks)
	}
}

func TestReport(t *testing.T) {
	e := testEngine(t)
	if _, err := e.Consolidate(context.Background(), ConsolidateOptions{}); err != nil {
		t.Fatal(err)
	}
	rep, err := e.Report("")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Rows != 7 {
		t.Errorf("expected 7 rows, got %d", rep.Rows)
	}
	if len(rep.Categories) == 0 {
		t.Error("expected categories from the mapping file")
	}
}

func TestAssemble(t *testing.T) {
	e := testEngine(t)
	dir := filepath.Dir(e.ConfigPath)
	parts := map[string]string{
		"parts/patient.csv": "PATIENT_ID,AGE_AT_DIAGNOSIS\nMB-1,50\nMB-2,61\n",
		"parts/sample.csv":  "PATIENT_ID,ER_STATUS\nMB-2,Positive\nMB-1,Negative\nMB-1,Positive\n",
	}
	for name, data := range parts {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e.Config.Sources[0].Path = filepath.Join(dir, "data", "metabric_assembled.csv")
	e.Config.Sources[0].Parts = []cohort.Part{
		{Name: "patient", Path: filepath.Join(dir, "parts/patient.csv"), Key: "PATIENT_ID"},
		{Name: "sample", Path: filepath.Join(dir, "parts/sample.csv"), Key: "PATIENT_ID"},
	}

	out, err := e.Assemble(context.Background(), nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out) != 1 || out[0].Rows != 2 || out[0].Columns != 3 {
		t.Fatalf("unexpected result %+v", out)
	}
	if len(out[0].Warnings) != 1 {
		t.Errorf("expected duplicate key warning, got %v", out[0].Warnings)
	}
	if _, err := os.Stat(e.Config.Sources[0].Path); err != nil {
		t.Errorf("expected assembled table on disk: %v", err)
	}

	if _, err := e.Assemble(context.Background(), []string{"TCGA"}); err == nil {
		t.Error("expected error when no selected source has parts")
	}
}

func TestColumnsAndSuggest(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	inv, err := e.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(inv.Sources) != 3 || len(inv.Sources[0].Columns) != 5 {
		t.Fatalf("unexpected inventory %+v", inv)
	}
	if _, err := os.Stat(e.Config.OutputPath("metabric_columns.txt")); err != nil {
		t.Errorf("expected column list: %v", err)
	}

	// The SCANB header now comes from its column list.
	e.Config.Sources[1].Columns = e.Config.OutputPath("scanb_columns.txt")
	groups, err := e.Suggest(ctx)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(groups) == 0 {
		t.Fatal("expected suggestions")
	}
	if _, err := mapping.LoadYAML(e.Config.OutputPath("mapeo_sugerido.yaml")); err != nil {
		t.Errorf("expected suggestion file to load as a mapping: %v", err)
	}

	pending, err := e.PendingSuggestions(groups)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range pending {
		if g.Unified == "er_status" {
			t.Error("expected er_status to be filtered as already mapped")
		}
	}
}

func TestAccept(t *testing.T) {
	e := testEngine(t)
	g := mapping.Group{
		Unified:  "claudin_subtype",
		Category: mapping.Clinical,
		Columns:  map[string]string{"metabric": "CLAUDIN_SUBTYPE"},
	}
	if err := e.Accept([]mapping.Group{g}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	mt, err := e.LoadMapping()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mt.Lookup("claudin_subtype"); !ok {
		t.Error("expected accepted entry in the mapping file")
	}
	if err := e.Accept([]mapping.Group{g}); err == nil {
		t.Error("expected duplicate entry to be rejected")
	}
}

func TestAnalyze(t *testing.T) {
	e := testEngine(t)
	summary, err := e.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.Total == 0 {
		t.Error("expected normalized keys")
	}
	if _, err := os.Stat(e.Config.OutputPath("overlap.txt")); err != nil {
		t.Errorf("expected overlap report: %v", err)
	}
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()
	path, err := InitProject(dir)
	if err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading generated config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config invalid: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mapeo_columnas.yaml")); err != nil {
		t.Errorf("expected starter mapping: %v", err)
	}
	if _, err := InitProject(dir); err == nil {
		t.Error("expected error when config exists")
	}
}
