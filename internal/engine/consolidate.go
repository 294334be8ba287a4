package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brcamerge/brcamerge/internal/consolidate"
	"github.com/brcamerge/brcamerge/internal/lock"
	"github.com/brcamerge/brcamerge/internal/logging"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/metrics"
	"github.com/brcamerge/brcamerge/internal/normalize"
	"github.com/brcamerge/brcamerge/internal/project"
	"github.com/brcamerge/brcamerge/internal/report"
	"github.com/brcamerge/brcamerge/internal/state"
	"github.com/brcamerge/brcamerge/internal/table"
	"github.com/brcamerge/brcamerge/internal/target"
	"github.com/brcamerge/brcamerge/internal/validation"
)

// ErrValidationFailed is returned when the post-run checks do not pass. The
// unified table is left uncommitted and the manifest holds the details.
var ErrValidationFailed = errors.New("post-run validation failed")

// ConsolidateOptions tunes a consolidation run.
type ConsolidateOptions struct {
	// Force runs even when the inputs match the last complete run.
	Force bool
	// SkipSinks writes only the local files.
	SkipSinks bool
	// SampleSize is the number of rows per source compared value by value.
	SampleSize int
}

// Run is the outcome of Consolidate.
type Run struct {
	Manifest *state.Manifest
	Result   *consolidate.Result
	Report   *report.CompletenessReport
	Sinks    []target.Result
	// UpToDate is set when the run was skipped because nothing changed.
	UpToDate bool
}

// Consolidate projects every source, unions and normalizes the rows, writes
// the unified table and its completeness report, loads the sinks and checks
// the run. The manifest is saved whether or not the run succeeds.
func (e *Engine) Consolidate(ctx context.Context, opts ConsolidateOptions) (run *Run, err error) {
	outDir := e.Config.Output.Directory
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	manifestPath := state.Path(outDir)
	if !opts.Force {
		if prev, err := state.Load(manifestPath); err == nil && prev != nil && e.upToDate(prev) {
			e.Logger.Info("inputs unchanged since last run", "run_id", prev.RunID)
			return &Run{Manifest: prev, UpToDate: true}, nil
		}
	}

	lockPath := lock.Path(outDir)
	if err := lock.Acquire(lockPath); err != nil {
		return nil, err
	}
	defer lock.Release(lockPath)

	m := state.New(e.ConfigPath)
	if m.Settings, err = e.Config.Fingerprint(); err != nil {
		return nil, err
	}
	run = &Run{Manifest: m}
	defer func() {
		m.Finish(err)
		if saveErr := m.Save(manifestPath); saveErr != nil {
			e.Logger.Error("saving manifest", "error", saveErr)
		}
		if flushErr := metrics.Flush(); flushErr != nil {
			e.Logger.Warn("pushing metrics", "error", flushErr)
		}
	}()
	e.Logger.Info("consolidation started", "run_id", m.RunID, "sources", len(e.Config.Sources))

	var (
		mt      *mapping.Table
		sources []Source
	)
	err = e.timed(m, state.StepLoad, func() error {
		var err error
		if mt, err = e.LoadMapping(); err != nil {
			return err
		}
		if m.Mapping, err = state.Describe(e.Config.Mapping); err != nil {
			return fmt.Errorf("fingerprinting mapping: %w", err)
		}
		m.Mapping.Rows = mt.Len()
		sources, err = e.LoadSources(ctx)
		return err
	})
	if err != nil {
		return run, err
	}

	projected := make([]*table.Table, len(sources))
	err = e.timed(m, state.StepProject, func() error {
		for i, s := range sources {
			p, warnings, err := project.Project(s.Table, project.Source{Tag: s.Config.Tag, Key: s.Config.Key}, mt)
			if err != nil {
				return err
			}
			projected[i] = p
			logging.Warnings(e.Logger, "project", warnings)
			metrics.RecordRows(s.Config.Tag, "projected", p.Len())
			metrics.RecordWarnings("project", len(warnings))

			in := state.Input{Tag: s.Config.Tag, File: *s.File, Projected: p.Len(), Warnings: len(s.Warnings) + len(warnings)}
			m.Inputs = append(m.Inputs, in)
			m.Warnings += in.Warnings
			e.Logger.Info("source projected", "source", s.Config.Tag, "rows", p.Len(), "columns", p.Width()-1)
		}
		return nil
	})
	if err != nil {
		return run, err
	}

	err = e.timed(m, state.StepConsolidate, func() error {
		n, err := normalize.New(*e.Config.Normalization, e.Config.IdentifierColumn)
		if err != nil {
			return fmt.Errorf("normalization rules: %w", err)
		}
		res, err := consolidate.Consolidate(projected, n)
		if err != nil {
			return err
		}
		run.Result = res
		logging.Warnings(e.Logger, "normalize", res.Warnings)
		metrics.RecordWarnings("normalize", len(res.Warnings))
		m.Warnings += len(res.Warnings)
		for _, r := range res.Summary.Results {
			e.Logger.Info("normalization rule applied", "rule", r.Rule, "column", r.Column,
				"changed", r.Changed, "untouched", r.Untouched, "skipped", r.Skipped)
		}
		return nil
	})
	if err != nil {
		return run, err
	}
	unified := run.Result.Table

	// Outputs are staged next to their final names and committed only after
	// every later stage succeeded.
	var staged []stagedFile
	defer func() {
		if err != nil {
			for _, f := range staged {
				os.Remove(f.staged)
			}
		}
	}()

	err = e.timed(m, state.StepWrite, func() error {
		path := e.Config.OutputPath(e.Config.Output.Unified)
		csvFile := stage(path)
		staged = append(staged, csvFile)
		if err := table.WriteFile(csvFile.staged, unified); err != nil {
			return fmt.Errorf("writing unified table: %w", err)
		}
		out, err := state.Describe(csvFile.staged)
		if err != nil {
			return err
		}
		out.Path = path
		out.Rows, out.Columns = unified.Len(), unified.Width()
		m.Output = out
		metrics.RecordRows("unified", "written", unified.Len())
		e.Logger.Info("unified table staged", "path", csvFile.staged, "rows", unified.Len(), "columns", unified.Width())

		if e.Config.Output.Parquet != "" {
			pq := stage(e.Config.OutputPath(e.Config.Output.Parquet))
			staged = append(staged, pq)
			if err := target.WriteParquet(pq.staged, unified); err != nil {
				return err
			}
			e.Logger.Info("parquet export staged", "path", pq.staged)
		}
		return nil
	})
	if err != nil {
		return run, err
	}

	if opts.SkipSinks || !e.hasSinks() {
		m.SkipStep(state.StepSinks)
	} else {
		err = e.timed(m, state.StepSinks, func() error {
			writers, err := e.OpenSinks(ctx)
			if err != nil {
				return err
			}
			defer target.CloseAll(ctx, writers)
			results, err := target.Run(ctx, writers, unified)
			run.Sinks = results
			for _, r := range results {
				e.Logger.Info("sink loaded", "sink", r.Sink, "rows", r.Written, "ok", r.OK())
			}
			return err
		})
		if err != nil {
			return run, err
		}
	}

	err = e.timed(m, state.StepReport, func() error {
		rep := report.Compute(unified, report.Options{
			IdentifierColumn: e.Config.IdentifierColumn,
			Categories:       mt.Categories(),
		})
		rep.GeneratedAt = time.Now()
		run.Report = rep
		return e.writeReport(rep)
	})
	if err != nil {
		return run, err
	}

	err = e.timed(m, state.StepValidate, func() error {
		runs := make([]validation.SourceRun, len(sources))
		for i, s := range sources {
			runs[i] = validation.SourceRun{Tag: s.Config.Tag, Key: s.Config.Key, Raw: s.Table, Projected: projected[i]}
		}
		v := &validation.Validator{
			Sources:          runs,
			Mapping:          mt,
			Unified:          unified,
			Report:           run.Report,
			IdentifierColumn: e.Config.IdentifierColumn,
			Normalized:       e.Config.Normalization.Columns(),
			SampleSize:       opts.SampleSize,
			Callback: func(source, check string, passed bool) {
				e.Logger.Debug("check", "source", source, "check", check, "passed", passed)
			},
		}
		res := v.Validate()
		m.Validation = res
		if res.Status != validation.StatusPass {
			for _, f := range res.Failures() {
				e.Logger.Error("validation check failed", "check", f)
			}
			return ErrValidationFailed
		}
		return nil
	})
	if err != nil {
		return run, err
	}

	if err = commit(staged); err != nil {
		return run, err
	}
	e.Logger.Info("unified table written", "path", m.Output.Path)

	e.Logger.Info("consolidation complete", "rows", unified.Len(), "columns", unified.Width(), "warnings", m.Warnings)
	return run, nil
}

type stagedFile struct {
	staged string
	final  string
}

func stage(path string) stagedFile {
	return stagedFile{
		staged: filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".staged"),
		final:  path,
	}
}

// commit renames every staged output into place.
func commit(files []stagedFile) error {
	for _, f := range files {
		if err := os.Rename(f.staged, f.final); err != nil {
			return fmt.Errorf("committing %s: %w", f.final, err)
		}
	}
	return nil
}

// upToDate reports whether prev completed and neither its inputs, the
// output-shaping config settings nor its output changed since.
func (e *Engine) upToDate(prev *state.Manifest) bool {
	if prev.Status != state.StatusComplete || prev.Output == nil || len(prev.Inputs) != len(e.Config.Sources) {
		return false
	}
	for i, s := range e.Config.Sources {
		if prev.Inputs[i].Path != s.Path {
			return false
		}
	}
	if prev.Mapping == nil || prev.Mapping.Path != e.Config.Mapping {
		return false
	}
	if settings, err := e.Config.Fingerprint(); err != nil || settings != prev.Settings {
		return false
	}
	same, err := prev.Unchanged()
	if err != nil || !same {
		return false
	}
	cur, err := state.Describe(prev.Output.Path)
	return err == nil && cur.Fingerprint == prev.Output.Fingerprint
}

func (e *Engine) writeReport(rep *report.CompletenessReport) error {
	textPath := e.Config.OutputPath(e.Config.Output.Report)
	if err := report.WriteText(rep, textPath); err != nil {
		return err
	}
	jsonPath := e.Config.OutputPath(e.Config.Output.ReportJSON)
	if err := report.WriteJSON(rep, jsonPath); err != nil {
		return err
	}
	e.Logger.Info("completeness report written", "text", textPath, "json", jsonPath)
	return nil
}

// Report computes the completeness report of an existing unified CSV and
// writes the text and JSON forms. An empty path reads the configured output.
func (e *Engine) Report(path string) (*report.CompletenessReport, error) {
	if path == "" {
		path = e.Config.OutputPath(e.Config.Output.Unified)
	}
	var rep *report.CompletenessReport
	err := e.timed(nil, state.StepReport, func() error {
		t, warnings, err := table.ReadFile(path, table.ReadOptions{Comma: ',', MissingTokens: e.Config.MissingTokens})
		if err != nil {
			return fmt.Errorf("reading unified table: %w", err)
		}
		logging.Warnings(e.Logger, "report", warnings)
		opt := report.Options{IdentifierColumn: e.Config.IdentifierColumn}
		if mt, err := e.LoadMapping(); err == nil {
			opt.Categories = mt.Categories()
		} else {
			e.Logger.Debug("report without categories", "error", err)
		}
		rep = report.Compute(t, opt)
		rep.GeneratedAt = time.Now()
		return e.writeReport(rep)
	})
	return rep, err
}

// Status returns the manifest of the last run, or nil when there is none.
func (e *Engine) Status() (*state.Manifest, error) {
	return state.Load(state.Path(e.Config.Output.Directory))
}
