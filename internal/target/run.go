package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/brcamerge/brcamerge/internal/table"
)

// Run writes t to every writer in order and verifies each store's row count.
// A failing sink does not stop the others; its error is recorded in the
// result and joined into the returned error.
func Run(ctx context.Context, writers []Writer, t *table.Table) ([]Result, error) {
	results := make([]Result, 0, len(writers))
	var errs []error
	for _, w := range writers {
		r := Result{Sink: w.Name(), Rows: int64(t.Len())}
		n, err := w.Write(ctx, t)
		if err == nil {
			n, err = w.Count(ctx)
		}
		r.Written = n
		switch {
		case err != nil:
			r.Error = err.Error()
		case n != r.Rows:
			r.Error = fmt.Sprintf("stored %d rows, expected %d", n, r.Rows)
		}
		if r.Error != "" {
			errs = append(errs, fmt.Errorf("sink %s: %s", r.Sink, r.Error))
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// CloseAll closes every writer and returns the first error.
func CloseAll(ctx context.Context, writers []Writer) error {
	var first error
	for _, w := range writers {
		if err := w.Close(ctx); err != nil && first == nil {
			first = fmt.Errorf("closing %s: %w", w.Name(), err)
		}
	}
	return first
}
