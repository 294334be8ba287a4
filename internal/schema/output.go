package schema

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads an inventory from a YAML file.
func LoadYAML(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return inv, nil
}

// WriteYAML writes the inventory to a YAML file at the given path.
func (inv *Inventory) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshaling inventory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Summary returns a human-readable summary of the inventory.
func (inv *Inventory) Summary() string {
	var b strings.Builder
	for _, s := range inv.Sources {
		empty := 0
		for _, c := range s.Columns {
			if c.Present == 0 {
				empty++
			}
		}
		fmt.Fprintf(&b, "%-10s %6d rows  %5d columns  %4d empty\n", s.Tag, s.Rows, len(s.Columns), empty)
	}
	return b.String()
}

// WriteColumnList writes a numbered column list: a count line, a rule, and
// one "N. NAME" line per column.
func WriteColumnList(w io.Writer, columns []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Total columns: %d\n", len(columns))
	fmt.Fprintf(bw, "%s\n\n", strings.Repeat("=", 80))
	for i, c := range columns {
		fmt.Fprintf(bw, "%d. %s\n", i+1, c)
	}
	return bw.Flush()
}

// WriteColumnListFile writes a numbered column list to path.
func WriteColumnListFile(path string, columns []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteColumnList(f, columns); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

var numberedLine = regexp.MustCompile(`^\d+\.\s+(.+)$`)

// ParseColumnList reads the names from a numbered column list. Lines that are
// not "N. NAME" entries are ignored.
func ParseColumnList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if m := numberedLine.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadColumnList reads a numbered column list file.
func ReadColumnList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening column list: %w", err)
	}
	defer f.Close()
	cols, err := ParseColumnList(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return cols, nil
}
