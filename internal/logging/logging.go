package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brcamerge/brcamerge/internal/cohort"
	"github.com/brcamerge/brcamerge/internal/config"
	"github.com/brcamerge/brcamerge/internal/normalize"
	"github.com/brcamerge/brcamerge/internal/project"
	"github.com/brcamerge/brcamerge/internal/table"
)

// Setup initializes the logger. Records go to out and, when directory is
// set, to a dated log file in it. The returned closer closes that file.
func Setup(level, directory string, out io.Writer) (*slog.Logger, io.Closer, error) {
	writer := out
	var closer io.Closer = nopCloser{}

	if directory != "" {
		directory = config.ExpandHome(directory)
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		filename := fmt.Sprintf("brcamerge-%s.log", time.Now().Format("2006-01-02"))
		logPath := filepath.Join(directory, filename)

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writer = io.MultiWriter(out, file)
		closer = file
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler), closer, nil
}

// ParseLevel maps a config spelling to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Warnings logs recoverable pipeline warnings at WARN, one record each, with
// the structured fields of the known warning types.
func Warnings(logger *slog.Logger, stage string, warnings []error) {
	for _, w := range warnings {
		logger.Warn(message(w), append([]any{"stage", stage}, Attrs(w)...)...)
	}
}

func message(err error) string {
	var (
		missing   *project.MissingColumnWarning
		skipped   *normalize.ConversionSkipped
		malformed *table.MalformedRowWarning
		dup       *cohort.DuplicateKeyWarning
	)
	switch {
	case errors.As(err, &missing):
		return "mapped column missing from source"
	case errors.As(err, &skipped):
		return "normalization rule skipped"
	case errors.As(err, &malformed):
		return "malformed source field read as missing"
	case errors.As(err, &dup):
		return "duplicate join key ignored"
	}
	return err.Error()
}

// Attrs returns slog key/value pairs describing a warning.
func Attrs(err error) []any {
	var (
		missing   *project.MissingColumnWarning
		skipped   *normalize.ConversionSkipped
		malformed *table.MalformedRowWarning
		dup       *cohort.DuplicateKeyWarning
	)
	switch {
	case errors.As(err, &missing):
		return []any{"source", missing.Source, "column", missing.Native, "unified", missing.Unified}
	case errors.As(err, &skipped):
		return []any{"rule", skipped.Rule, "column", skipped.Column}
	case errors.As(err, &malformed):
		return []any{"table", malformed.Table, "row", malformed.Row, "column", malformed.Column, "reason", malformed.Reason}
	case errors.As(err, &dup):
		return []any{"part", dup.Part, "row", dup.Row, "key", dup.Key}
	}
	return nil
}
