package target

import (
	"context"

	"github.com/brcamerge/brcamerge/internal/table"
)

// MockWriter is a test double for the Writer interface.
type MockWriter struct {
	SinkName string
	WriteErr error
	CountErr error
	CloseErr error
	// Drop, when positive, makes Write store that many fewer rows than sent.
	Drop int

	// Track calls
	Written *table.Table
	Stored  int64
	Closed  bool
}

func (m *MockWriter) Name() string {
	if m.SinkName == "" {
		return "mock"
	}
	return m.SinkName
}

func (m *MockWriter) Write(_ context.Context, t *table.Table) (int64, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.Written = t
	m.Stored = int64(max(t.Len()-m.Drop, 0))
	return m.Stored, nil
}

func (m *MockWriter) Count(_ context.Context) (int64, error) {
	return m.Stored, m.CountErr
}

func (m *MockWriter) Close(_ context.Context) error {
	m.Closed = true
	return m.CloseErr
}
