package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brcamerge/brcamerge/internal/cohort"
	"github.com/brcamerge/brcamerge/internal/config"
	"github.com/brcamerge/brcamerge/internal/logging"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/report"
	"github.com/brcamerge/brcamerge/internal/schema"
	"github.com/brcamerge/brcamerge/internal/table"
)

// Assembled describes one cohort table built from its parts.
type Assembled struct {
	Tag      string
	Path     string
	Parts    int
	Rows     int
	Columns  int
	Warnings []error
}

// Assemble builds the raw table of every source that declares parts and
// writes it to the source's path. A non-empty tags list restricts the
// sources.
func (e *Engine) Assemble(ctx context.Context, tags []string) ([]Assembled, error) {
	var out []Assembled
	for _, sc := range e.Config.Sources {
		if len(sc.Parts) == 0 || !selected(sc.Tag, tags) {
			continue
		}
		a, err := e.assembleSource(ctx, sc)
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no source to assemble: declare parts for at least one source")
	}
	return out, nil
}

func (e *Engine) assembleSource(ctx context.Context, sc config.SourceConfig) (Assembled, error) {
	loaded := make([]cohort.Loaded, len(sc.Parts))
	partWarnings := make([][]error, len(sc.Parts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, p := range sc.Parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, warnings, err := cohort.Load(p, e.Config.MissingTokens)
			if err != nil {
				return fmt.Errorf("source %s: %w", sc.Tag, err)
			}
			loaded[i] = cohort.Loaded{Part: p, Table: t}
			partWarnings[i] = warnings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Assembled{}, err
	}

	var warnings []error
	for i, w := range partWarnings {
		warnings = append(warnings, w...)
		e.Logger.Info("part loaded", "source", sc.Tag, "part", loaded[i].Table.Name,
			"rows", loaded[i].Table.Len(), "columns", loaded[i].Table.Width())
	}

	t, joinWarnings, err := cohort.Assemble(sc.Tag, loaded)
	if err != nil {
		return Assembled{}, err
	}
	warnings = append(warnings, joinWarnings...)
	logging.Warnings(e.Logger, "assemble", warnings)

	if err := table.WriteFile(sc.Path, t); err != nil {
		return Assembled{}, fmt.Errorf("source %s: writing assembled table: %w", sc.Tag, err)
	}
	e.Logger.Info("cohort assembled", "source", sc.Tag, "path", sc.Path, "rows", t.Len(), "columns", t.Width())
	return Assembled{
		Tag:      sc.Tag,
		Path:     sc.Path,
		Parts:    len(sc.Parts),
		Rows:     t.Len(),
		Columns:  t.Width(),
		Warnings: warnings,
	}, nil
}

func selected(tag string, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Columns describes every source, writes the inventory YAML and one
// numbered column list per source ("<key>_columns.txt") to the output
// directory.
func (e *Engine) Columns(ctx context.Context) (*schema.Inventory, error) {
	sources, err := e.LoadSources(ctx)
	if err != nil {
		return nil, err
	}
	inv := &schema.Inventory{}
	for _, s := range sources {
		desc := schema.Describe(s.Config.Tag, s.Config.Key, s.Config.Path, s.Table)
		inv.Sources = append(inv.Sources, desc)

		listPath := e.Config.OutputPath(s.Config.Key + "_columns.txt")
		if err := schema.WriteColumnListFile(listPath, s.Table.Columns()); err != nil {
			return nil, err
		}
		e.Logger.Info("column list written", "source", s.Config.Tag, "path", listPath, "columns", s.Table.Width())
	}
	invPath := e.Config.OutputPath(e.Config.Output.Inventory)
	if err := inv.WriteYAML(invPath); err != nil {
		return nil, err
	}
	e.Logger.Info("column inventory written", "path", invPath)
	return inv, nil
}

// SourceColumns returns each source's header in file order. A source with a
// column list configured is read from that list instead of its table.
func (e *Engine) SourceColumns(ctx context.Context) ([]mapping.SourceColumns, error) {
	out := make([]mapping.SourceColumns, len(e.Config.Sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, sc := range e.Config.Sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if sc.Columns != "" {
				cols, err := schema.ReadColumnList(sc.Columns)
				if err != nil {
					return fmt.Errorf("source %s: %w", sc.Tag, err)
				}
				out[i] = mapping.SourceColumns{Key: sc.Key, Columns: cols}
				return nil
			}
			src, err := e.loadSource(sc)
			if err != nil {
				return err
			}
			out[i] = mapping.SourceColumns{Key: sc.Key, Columns: src.Table.Columns()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Suggest runs the column matcher over every source and writes the
// suggestion file.
func (e *Engine) Suggest(ctx context.Context) ([]mapping.Group, error) {
	cols, err := e.SourceColumns(ctx)
	if err != nil {
		return nil, err
	}
	scorer, err := mapping.NewScorer(e.Config.Matcher.Scorer)
	if err != nil {
		return nil, err
	}
	groups := mapping.Suggest(cols, mapping.SuggestOptions{
		Threshold:      e.Config.Matcher.Threshold,
		Scorer:         scorer,
		SkipCategories: e.Config.Matcher.SkipCategories,
	})

	path := e.Config.OutputPath(e.Config.Output.Suggestions)
	if err := mapping.WriteSuggestions(path, groups, e.Config.SourceKeys()); err != nil {
		return nil, err
	}
	e.Logger.Info("suggestions written", "path", path, "groups", len(groups))
	return groups, nil
}

// PendingSuggestions drops groups whose unified name the mapping file
// already declares. A missing mapping file keeps every group.
func (e *Engine) PendingSuggestions(groups []mapping.Group) ([]mapping.Group, error) {
	mt, err := e.LoadMapping()
	if err != nil {
		if _, statErr := os.Stat(e.Config.Mapping); os.IsNotExist(statErr) {
			return groups, nil
		}
		return nil, err
	}
	var out []mapping.Group
	for _, g := range groups {
		if _, ok := mt.Lookup(g.Unified); !ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// Accept appends the chosen suggestions to the mapping file.
func (e *Engine) Accept(groups []mapping.Group) error {
	entries := make([]mapping.Entry, len(groups))
	for i, g := range groups {
		entries[i] = g.Entry()
	}
	if err := mapping.AppendYAML(e.Config.Mapping, entries, e.Config.SourceKeys()); err != nil {
		return err
	}
	e.Logger.Info("mapping entries added", "path", e.Config.Mapping, "entries", len(entries))
	return nil
}

// Analyze reports the exact normalized-name overlap between sources and
// writes the text summary.
func (e *Engine) Analyze(ctx context.Context) (mapping.OverlapSummary, error) {
	cols, err := e.SourceColumns(ctx)
	if err != nil {
		return mapping.OverlapSummary{}, err
	}
	summary := mapping.Overlap(cols)
	path := e.Config.OutputPath(e.Config.Output.Overlap)
	if err := report.WriteOverlap(summary, path); err != nil {
		return summary, err
	}
	e.Logger.Info("overlap report written", "path", path, "keys", summary.Total, "shared", summary.Shared)
	return summary, nil
}

// InitProject writes a default config and, when missing, an empty mapping
// file into dir. An existing config is never overwritten.
func InitProject(dir string) (string, error) {
	cfgPath := filepath.Join(dir, config.DefaultPath)
	if _, err := os.Stat(cfgPath); err == nil {
		return "", fmt.Errorf("%s already exists", cfgPath)
	}
	cfg := config.Default()
	if err := cfg.Save(cfgPath); err != nil {
		return "", err
	}
	mappingPath := filepath.Join(dir, cfg.Mapping)
	if _, err := os.Stat(mappingPath); os.IsNotExist(err) {
		if err := mapping.AppendYAML(mappingPath, nil, cfg.SourceKeys()); err != nil {
			return "", err
		}
	}
	return cfgPath, nil
}
