// Package metrics records pipeline metrics through a pluggable backend. The
// default backend discards everything, so instrumentation is always safe to
// call.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal    = "brcamerge_step_total"
	StepDuration = "brcamerge_step_duration_seconds"
	RowsTotal    = "brcamerge_rows_total"
	WarningTotal = "brcamerge_warnings_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes collected metrics, for backends that need it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a backend. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one pipeline stage and observes its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds row counts for a source. Typical kinds are "read",
// "projected" and "written".
func RecordRows(source, kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"source": source, "kind": kind})
}

// RecordWarnings counts recoverable warnings raised by a stage.
func RecordWarnings(stage string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(WarningTotal, float64(n), Labels{"stage": stage})
}
