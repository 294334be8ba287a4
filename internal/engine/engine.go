// Package engine runs the pipeline stages shared by every command.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brcamerge/brcamerge/internal/config"
	"github.com/brcamerge/brcamerge/internal/logging"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/metrics"
	"github.com/brcamerge/brcamerge/internal/state"
	"github.com/brcamerge/brcamerge/internal/table"
	"github.com/brcamerge/brcamerge/internal/target"
)

// maxParallelLoads bounds how many source files are decoded at once.
const maxParallelLoads = 4

// Engine is the pipeline shared by all commands.
type Engine struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger

	// OpenSinks opens the configured sink writers. Tests replace it.
	OpenSinks func(ctx context.Context) ([]target.Writer, error)
	// Progress, when set, is called as each stage starts.
	Progress func(step state.Step)
}

// New creates a new Engine with the given config and logger.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *Engine {
	e := &Engine{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
	}
	e.OpenSinks = e.openConfiguredSinks
	return e
}

// Source is one cohort table read from disk.
type Source struct {
	Config   config.SourceConfig
	Table    *table.Table
	Warnings []error
	File     *state.File
}

// LoadSources reads every configured source concurrently. Results keep the
// configured source order.
func (e *Engine) LoadSources(ctx context.Context) ([]Source, error) {
	out := make([]Source, len(e.Config.Sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, sc := range e.Config.Sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := e.loadSource(sc)
			if err != nil {
				return err
			}
			out[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, s := range out {
		logging.Warnings(e.Logger, "load", s.Warnings)
		metrics.RecordRows(s.Config.Tag, "read", s.Table.Len())
		metrics.RecordWarnings("load", len(s.Warnings))
	}
	return out, nil
}

func (e *Engine) loadSource(sc config.SourceConfig) (Source, error) {
	comma, err := table.ParseDelimiter(sc.Delimiter)
	if err != nil {
		return Source{}, fmt.Errorf("source %s: %w", sc.Tag, err)
	}
	t, warnings, err := table.ReadFile(sc.Path, table.ReadOptions{Comma: comma, MissingTokens: e.Config.MissingTokens})
	if err != nil {
		return Source{}, fmt.Errorf("source %s: %w", sc.Tag, err)
	}
	t.Name = sc.Tag
	f, err := state.Describe(sc.Path)
	if err != nil {
		return Source{}, fmt.Errorf("source %s: fingerprinting: %w", sc.Tag, err)
	}
	f.Rows, f.Columns = t.Len(), t.Width()
	return Source{Config: sc, Table: t, Warnings: warnings, File: f}, nil
}

// LoadMapping reads the authoritative mapping file and orders its source
// fields the way the config lists the sources.
func (e *Engine) LoadMapping() (*mapping.Table, error) {
	m, err := mapping.LoadYAML(e.Config.Mapping)
	if err != nil {
		return nil, err
	}
	m.SetSourceKeys(e.Config.SourceKeys())
	return m, nil
}

func (e *Engine) progress(step state.Step) {
	e.Logger.Debug("stage started", "step", step)
	if e.Progress != nil {
		e.Progress(step)
	}
}

// timed runs fn as one stage and records its duration in metrics and, when
// m is not nil, in the manifest.
func (e *Engine) timed(m *state.Manifest, step state.Step, fn func() error) error {
	e.progress(step)
	start := time.Now()
	err := fn()
	took := time.Since(start)
	metrics.RecordStep(string(step), err, took)
	if err != nil {
		return err
	}
	if m != nil {
		m.CompleteStep(step, took)
	}
	e.Logger.Info("stage complete", "step", step, "duration", took.Round(time.Millisecond))
	return nil
}
