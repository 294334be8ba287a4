package mapping

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brcamerge/brcamerge/internal/table"
)

// categoryKey is the field that marks a top-level document entry as a column
// mapping. Entries without it are notes and are ignored.
const categoryKey = "tipo"

// Entry maps one unified column name to at most one native column per source.
type Entry struct {
	Unified  string
	Category Category
	// Columns maps a source key (e.g. "metabric") to its native column name.
	// Sources whose column is null are absent from the map.
	Columns map[string]string
}

// Column returns the native column for a source key.
func (e Entry) Column(sourceKey string) (string, bool) {
	c, ok := e.Columns[sourceKey]
	return c, ok && c != ""
}

// Table is the authoritative, ordered mapping document.
type Table struct {
	entries []Entry
	// sourceKeys in order of first appearance, used when writing.
	sourceKeys []string
}

// NewTable builds a Table from entries in the given order.
func NewTable(entries []Entry) *Table {
	t := &Table{}
	for _, e := range entries {
		t.add(e)
	}
	return t
}

func (t *Table) add(e Entry) {
	if e.Columns == nil {
		e.Columns = map[string]string{}
	}
	keys := make([]string, 0, len(e.Columns))
	for k := range e.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !contains(t.sourceKeys, k) {
			t.sourceKeys = append(t.sourceKeys, k)
		}
	}
	t.entries = append(t.entries, e)
}

// Entries returns the entries in file order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// Lookup finds an entry by unified name.
func (t *Table) Lookup(unified string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Unified == unified {
			return e, true
		}
	}
	return Entry{}, false
}

// SetSourceKeys fixes the order in which source fields are written.
func (t *Table) SetSourceKeys(keys []string) {
	t.sourceKeys = append([]string(nil), keys...)
}

// Rename is one native→unified column rename for a single source.
type Rename struct {
	Native  string
	Unified string
}

// RenamesFor lists, in entry order, every rename declared for a source key.
func (t *Table) RenamesFor(sourceKey string) []Rename {
	var out []Rename
	for _, e := range t.entries {
		if c, ok := e.Column(sourceKey); ok {
			out = append(out, Rename{Native: c, Unified: e.Unified})
		}
	}
	return out
}

// Categories returns unified name → category.
func (t *Table) Categories() map[string]Category {
	out := make(map[string]Category, len(t.entries))
	for _, e := range t.entries {
		out[e.Unified] = e.Category
	}
	return out
}

// IntegrityError reports a mapping that would make projection ambiguous.
type IntegrityError struct {
	Source  string
	Native  string
	Unified []string
	Reason  string
}

func (e *IntegrityError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("mapping integrity: %s: %s", strings.Join(e.Unified, ", "), e.Reason)
	}
	return fmt.Sprintf("mapping integrity: source %s column %q: %s (%s)",
		e.Source, e.Native, e.Reason, strings.Join(e.Unified, ", "))
}

// Validate checks that unified names are unique and that no native column is
// claimed by two unified names within one source. Every violation is
// reported; the result unwraps to *IntegrityError.
func (t *Table) Validate() error {
	errs := t.nameErrors()
	for _, src := range t.sourceKeys {
		errs = append(errs, t.sourceErrors(src)...)
	}
	return errors.Join(errs...)
}

// ValidateSource is Validate restricted to the unified names and one source.
func (t *Table) ValidateSource(sourceKey string) error {
	return errors.Join(append(t.nameErrors(), t.sourceErrors(sourceKey)...)...)
}

func (t *Table) nameErrors() []error {
	var errs []error
	seen := make(map[string]bool, len(t.entries))
	for _, e := range t.entries {
		switch {
		case e.Unified == "":
			errs = append(errs, &IntegrityError{Unified: []string{`""`}, Reason: "empty unified name"})
		case e.Unified == table.SourceColumn:
			errs = append(errs, &IntegrityError{Unified: []string{e.Unified}, Reason: "reserved for provenance"})
		case seen[e.Unified]:
			errs = append(errs, &IntegrityError{Unified: []string{e.Unified}, Reason: "unified name declared twice"})
		}
		seen[e.Unified] = true
	}
	return errs
}

func (t *Table) sourceErrors(src string) []error {
	var errs []error
	claimed := map[string][]string{}
	var order []string
	for _, e := range t.entries {
		c, ok := e.Column(src)
		if !ok {
			continue
		}
		if _, dup := claimed[c]; !dup {
			order = append(order, c)
		}
		claimed[c] = append(claimed[c], e.Unified)
	}
	for _, c := range order {
		if len(claimed[c]) > 1 {
			errs = append(errs, &IntegrityError{
				Source: src, Native: c, Unified: claimed[c],
				Reason: "native column mapped to more than one unified name",
			})
		}
	}
	return errs
}

// LoadYAML reads a mapping document. Top-level keys are unified names; each
// value carries one field per source key plus "tipo". Null and "null" native
// names mean the source has no such column.
func LoadYAML(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing mapping %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a mapping document from memory.
func Parse(data []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	t := &Table{}
	if len(doc.Content) == 0 {
		return t, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.MappingNode {
			continue
		}
		e, ok, err := decodeEntry(key.Value, val)
		if err != nil {
			return nil, err
		}
		if ok {
			t.add(e)
		}
	}
	return t, nil
}

func decodeEntry(unified string, n *yaml.Node) (Entry, bool, error) {
	e := Entry{Unified: unified, Columns: map[string]string{}}
	hasCategory := false
	var bad error
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			if bad == nil {
				bad = fmt.Errorf("line %d: %s.%s must be a scalar", v.Line, unified, k)
			}
			continue
		}
		if k == categoryKey {
			hasCategory = true
			e.Category = Category(strings.TrimSpace(v.Value))
			continue
		}
		if isNull(v) {
			continue
		}
		e.Columns[k] = v.Value
	}
	if hasCategory && bad != nil {
		return Entry{}, false, bad
	}
	return e, hasCategory, nil
}

func isNull(v *yaml.Node) bool {
	if v.Tag == "!!null" {
		return true
	}
	s := strings.TrimSpace(v.Value)
	return s == "" || s == "null" || s == "None" || s == "~"
}

// Node renders the table as a YAML mapping node.
func (t *Table) Node() *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range t.entries {
		root.Content = append(root.Content, scalar(e.Unified), t.entryNode(e))
	}
	return root
}

func (t *Table) entryNode(e Entry) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range t.sourceKeys {
		n.Content = append(n.Content, scalar(k))
		if c, ok := e.Column(k); ok {
			n.Content = append(n.Content, scalar(c))
		} else {
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"})
		}
	}
	n.Content = append(n.Content, scalar(categoryKey), scalar(string(e.Category)))
	return n
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// WriteYAML writes the mapping to a YAML file at the given path.
func (t *Table) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{t.Node()}})
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// AppendYAML adds entries to an existing mapping file, keeping its comments
// and note entries. The file is created when missing. Entries whose unified
// name already exists are rejected.
func AppendYAML(path string, entries []Entry, sourceKeys []string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing mapping %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("reading mapping file: %w", err)
	}
	if len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("mapping %s: top level must be a mapping", path)
	}

	existing := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		existing[root.Content[i].Value] = true
	}
	w := &Table{sourceKeys: sourceKeys}
	for _, e := range entries {
		if existing[e.Unified] {
			return &IntegrityError{Unified: []string{e.Unified}, Reason: "unified name already present in " + filepath.Base(path)}
		}
		existing[e.Unified] = true
		root.Content = append(root.Content, scalar(e.Unified), w.entryNode(e))
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
