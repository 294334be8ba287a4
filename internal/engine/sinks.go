package engine

import (
	"context"

	"github.com/brcamerge/brcamerge/internal/target"
)

// openConfiguredSinks opens a writer for every sink in the config. Writers
// already opened are closed when a later one fails.
func (e *Engine) openConfiguredSinks(ctx context.Context) ([]target.Writer, error) {
	var writers []target.Writer
	fail := func(err error) ([]target.Writer, error) {
		target.CloseAll(ctx, writers)
		return nil, err
	}

	s := e.Config.Sinks
	if s.SQLite != nil {
		w, err := target.NewSQLiteWriter(ctx, s.SQLite.Path, s.SQLite.Table)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if s.Postgres != nil {
		w, err := target.NewPostgresWriter(ctx, s.Postgres.ConnectionString, s.Postgres.Table)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if s.MongoDB != nil {
		w, err := target.NewMongoWriter(ctx, s.MongoDB.ConnectionString, s.MongoDB.Database, s.MongoDB.Collection, s.MongoDB.BatchSize)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func (e *Engine) hasSinks() bool {
	s := e.Config.Sinks
	return s.SQLite != nil || s.Postgres != nil || s.MongoDB != nil
}
