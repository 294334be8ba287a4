package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\uFEFF"

// MalformedRowWarning reports a field that could not be decoded. The field is
// read as absent and the row is kept.
type MalformedRowWarning struct {
	Table  string
	Row    int // 1-based data row, header excluded
	Column string
	Reason string
}

func (w *MalformedRowWarning) Error() string {
	if w.Column == "" {
		return fmt.Sprintf("%s row %d: %s", w.Table, w.Row, w.Reason)
	}
	return fmt.Sprintf("%s row %d column %q: %s", w.Table, w.Row, w.Column, w.Reason)
}

// ReadOptions configures delimited-text decoding.
type ReadOptions struct {
	// Comma is the field delimiter. Zero sniffs the header line, preferring tab
	// when it yields more fields than comma.
	Comma rune
	// MissingTokens lists cell spellings read as absent. Nil uses DefaultMissingTokens.
	MissingTokens []string
}

// Read decodes a delimited table with a header row. Recoverable decoding
// problems are returned as warnings; the returned error is non-nil only when
// the stream cannot be read at all.
func Read(name string, r io.Reader, opt ReadOptions) (*Table, []error, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	comma := opt.Comma
	if comma == 0 {
		var err error
		if comma, err = sniffDelimiter(br); err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("reading %s: empty input, header row required", name)
		}
		return nil, nil, fmt.Errorf("reading %s header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var warnings []error
	cols := dedupeHeader(header)
	for i, c := range cols {
		if h := strings.TrimSpace(header[i]); c != h {
			warnings = append(warnings, &MalformedRowWarning{
				Table: name, Column: h,
				Reason: fmt.Sprintf("duplicate header at position %d renamed to %q", i+1, c),
			})
		}
	}
	t, err := New(name, cols)
	if err != nil {
		return nil, nil, err
	}

	missing := MissingSet(opt.MissingTokens)
	rowNum := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) || rec == nil {
				return nil, nil, fmt.Errorf("reading %s row %d: %w", name, rowNum, err)
			}
			warnings = append(warnings, &MalformedRowWarning{Table: name, Row: rowNum, Reason: pe.Err.Error()})
		}
		row := make([]Value, len(cols))
		for j := range cols {
			if j >= len(rec) {
				continue
			}
			field := rec[j]
			if !utf8.ValidString(field) {
				warnings = append(warnings, &MalformedRowWarning{
					Table: name, Row: rowNum, Column: cols[j], Reason: "invalid UTF-8, read as missing",
				})
				continue
			}
			row[j] = Parse(field, missing)
		}
		switch {
		case len(rec) < len(cols):
			warnings = append(warnings, &MalformedRowWarning{
				Table: name, Row: rowNum,
				Reason: fmt.Sprintf("%d fields, expected %d; trailing fields read as missing", len(rec), len(cols)),
			})
		case len(rec) > len(cols):
			warnings = append(warnings, &MalformedRowWarning{
				Table: name, Row: rowNum,
				Reason: fmt.Sprintf("%d fields, expected %d; extra fields ignored", len(rec), len(cols)),
			})
		}
		t.rows = append(t.rows, row)
	}
	return t, warnings, nil
}

// ReadFile opens and decodes a delimited file. A ".tsv" or ".tab" extension
// selects tab unless opt.Comma is set.
func ReadFile(path string, opt ReadOptions) (*Table, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if opt.Comma == 0 {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tsv", ".tab":
			opt.Comma = '\t'
		}
	}
	return Read(filepath.Base(path), f, opt)
}

// ParseDelimiter turns a config spelling into a rune: "", "auto" sniff;
// "tab", "\t" and "tsv" select tab; "comma" and "csv" select comma; any
// other single character is used as-is.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`, "\t", "tsv":
		return '\t', nil
	case "comma", "csv":
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(64 * 1024)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, err
	}
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t', nil
	}
	return ',', nil
}

// dedupeHeader renames repeated header names to name.1, name.2, ...
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		name := h
		for n := 1; seen[name]; n++ {
			name = h + "." + strconv.Itoa(n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// Write serializes t as comma-separated text. Absent values become empty fields.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for i, row := range t.rows {
		for j, v := range row {
			rec[j] = v.Text()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes t to a temporary file in the destination directory and
// renames it into place, so readers never observe a partial file.
func WriteFile(path string, t *Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, t); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	committed = true
	return nil
}
