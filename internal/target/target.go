// Package target writes the unified table to optional downstream stores.
package target

import (
	"context"
	"strings"

	"github.com/brcamerge/brcamerge/internal/table"
)

// Writer loads a unified table into one store. Write replaces whatever a
// previous run stored under the same name.
type Writer interface {
	Name() string
	Write(ctx context.Context, t *table.Table) (int64, error)
	// Count returns the number of rows the store currently holds, used to
	// verify a write.
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Result is the outcome of one sink write.
type Result struct {
	Sink    string `yaml:"sink" json:"sink"`
	Rows    int64  `yaml:"rows" json:"rows"`
	Written int64  `yaml:"written" json:"written"`
	Error   string `yaml:"error,omitempty" json:"error,omitempty"`
}

// OK reports whether the sink holds exactly the rows that were sent.
func (r Result) OK() bool {
	return r.Error == "" && r.Rows == r.Written
}

// cells renders a row as nullable strings. Absent values become nil.
func cells(row []table.Value) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v.IsPresent() {
			out[i] = v.Text()
		}
	}
	return out
}

// quoteIdent quotes a SQL identifier with double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
