package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brcamerge/brcamerge/internal/validation"
)

func TestLoadMissing(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := New("brcamerge.yaml")
	if m.RunID == "" || m.Status != StatusRunning {
		t.Fatalf("unexpected new manifest %+v", m)
	}
	m.Inputs = []Input{{Tag: "METABRIC", File: File{Path: "m.csv", Fingerprint: "00000000000000ff", Rows: 3}, Projected: 3}}
	m.Output = &File{Path: "unified.csv", Rows: 3, Columns: 4}
	m.CompleteStep(StepLoad, 12*time.Millisecond)
	m.SkipStep(StepSinks)
	m.Validation = &validation.Result{Status: validation.StatusPass}
	m.Finish(nil)

	path := Path(dir)
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID != m.RunID {
		t.Errorf("expected run id %s, got %s", m.RunID, loaded.RunID)
	}
	if loaded.Status != StatusComplete {
		t.Errorf("expected complete, got %s", loaded.Status)
	}
	if !loaded.IsStepComplete(StepLoad) {
		t.Error("load step should be complete")
	}
	if loaded.IsStepComplete(StepSinks) {
		t.Error("skipped step should not count as complete")
	}
	if loaded.Inputs[0].Fingerprint != "00000000000000ff" || loaded.Inputs[0].Tag != "METABRIC" {
		t.Errorf("unexpected input %+v", loaded.Inputs[0])
	}
	if loaded.Validation == nil || loaded.Validation.Status != validation.StatusPass {
		t.Errorf("expected validation result to round-trip, got %+v", loaded.Validation)
	}
}

func TestFinishWithError(t *testing.T) {
	m := New("")
	m.Finish(errors.New("mapping integrity: boom"))
	if m.Status != StatusFailed || m.Error != "mapping integrity: boom" {
		t.Errorf("unexpected manifest %+v", m)
	}
}

func TestUnchanged(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "m.csv")
	mp := filepath.Join(dir, "mapeo.yaml")
	os.WriteFile(in, []byte("a,b\n1,2\n"), 0o644)
	os.WriteFile(mp, []byte("a:\n  metabric: a\n  tipo: clinical\n"), 0o644)

	inFile, err := Describe(in)
	if err != nil {
		t.Fatal(err)
	}
	mapFile, err := Describe(mp)
	if err != nil {
		t.Fatal(err)
	}
	m := New("")
	m.Inputs = []Input{{Tag: "METABRIC", File: *inFile}}
	m.Mapping = mapFile

	ok, err := m.Unchanged()
	if err != nil || !ok {
		t.Fatalf("expected unchanged, got %v %v", ok, err)
	}

	os.WriteFile(in, []byte("a,b\n1,3\n"), 0o644)
	ok, err = m.Unchanged()
	if err != nil || ok {
		t.Errorf("expected change detected, got %v %v", ok, err)
	}

	os.Remove(in)
	ok, err = m.Unchanged()
	if err != nil || ok {
		t.Errorf("expected missing input to count as changed, got %v %v", ok, err)
	}
}
