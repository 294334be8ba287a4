// Package state records consolidation runs in a YAML manifest kept in the
// output directory.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brcamerge/brcamerge/internal/table"
	"github.com/brcamerge/brcamerge/internal/validation"
)

// FileName is the manifest's name inside the output directory.
const FileName = "manifest.yaml"

// Step is one pipeline stage.
type Step string

const (
	StepLoad        Step = "load"
	StepProject     Step = "project"
	StepConsolidate Step = "consolidate"
	StepWrite       Step = "write"
	StepSinks       Step = "sinks"
	StepReport      Step = "report"
	StepValidate    Step = "validate"
)

// Steps lists the stages in execution order.
var Steps = []Step{StepLoad, StepProject, StepConsolidate, StepWrite, StepSinks, StepReport, StepValidate}

const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Manifest describes the most recent consolidation run.
type Manifest struct {
	RunID       string             `yaml:"run_id"`
	Status      string             `yaml:"status"`
	StartedAt   time.Time          `yaml:"started_at"`
	FinishedAt  time.Time          `yaml:"finished_at,omitempty"`
	LastUpdated time.Time          `yaml:"last_updated"`
	ConfigPath  string             `yaml:"config_path,omitempty"`
	// Settings fingerprints the config settings that shape the output.
	Settings    string             `yaml:"settings,omitempty"`
	Mapping     *File              `yaml:"mapping,omitempty"`
	Inputs      []Input            `yaml:"inputs,omitempty"`
	Output      *File              `yaml:"output,omitempty"`
	Steps       map[Step]StepState `yaml:"steps,omitempty"`
	Warnings    int                `yaml:"warnings"`
	Error       string             `yaml:"error,omitempty"`
	Validation  *validation.Result `yaml:"validation,omitempty"`
}

// File identifies a file by path and content fingerprint.
type File struct {
	Path        string `yaml:"path"`
	Fingerprint string `yaml:"fingerprint,omitempty"` // xxh3-64, hex
	Rows        int    `yaml:"rows,omitempty"`
	Columns     int    `yaml:"columns,omitempty"`
}

// Input is one source file with its projected row count.
type Input struct {
	Tag string `yaml:"tag"`
	File
	Projected int `yaml:"projected_rows"`
	Warnings  int `yaml:"warnings,omitempty"`
}

// StepState tracks the state of a single stage.
type StepState struct {
	Status      string        `yaml:"status"` // running, complete, failed, skipped
	CompletedAt time.Time     `yaml:"completed_at,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
}

// Path returns the manifest path for an output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Load reads a manifest. A missing file yields (nil, nil).
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Steps == nil {
		m.Steps = make(map[Step]StepState)
	}
	return m, nil
}

// Save writes the manifest to disk.
func (m *Manifest) Save(path string) error {
	m.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// New starts a manifest for a fresh run.
func New(configPath string) *Manifest {
	now := time.Now()
	return &Manifest{
		RunID:       uuid.NewString(),
		Status:      StatusRunning,
		StartedAt:   now,
		LastUpdated: now,
		ConfigPath:  configPath,
		Steps:       make(map[Step]StepState),
	}
}

// CompleteStep marks a stage as complete.
func (m *Manifest) CompleteStep(step Step, took time.Duration) {
	m.Steps[step] = StepState{Status: StatusComplete, CompletedAt: time.Now(), Duration: took}
}

// SkipStep marks a stage as skipped.
func (m *Manifest) SkipStep(step Step) {
	m.Steps[step] = StepState{Status: "skipped", CompletedAt: time.Now()}
}

// IsStepComplete returns true if the given stage has completed.
func (m *Manifest) IsStepComplete(step Step) bool {
	ss, ok := m.Steps[step]
	return ok && ss.Status == StatusComplete
}

// Finish records the end of the run. A nil error marks it complete.
func (m *Manifest) Finish(err error) {
	m.FinishedAt = time.Now()
	if err != nil {
		m.Status = StatusFailed
		m.Error = err.Error()
		return
	}
	m.Status = StatusComplete
}

// Describe fingerprints a file on disk.
func Describe(path string) (*File, error) {
	sum, err := table.FingerprintFile(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Fingerprint: table.FormatFingerprint(sum)}, nil
}

// Unchanged reports whether every input and the mapping still match the
// fingerprints recorded in m.
func (m *Manifest) Unchanged() (bool, error) {
	files := make([]File, 0, len(m.Inputs)+1)
	for _, in := range m.Inputs {
		files = append(files, in.File)
	}
	if m.Mapping != nil {
		files = append(files, *m.Mapping)
	}
	for _, f := range files {
		cur, err := Describe(f.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		if cur.Fingerprint != f.Fingerprint {
			return false, nil
		}
	}
	return true, nil
}
