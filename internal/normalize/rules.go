package normalize

import (
	"fmt"
	"strings"
)

// DefaultPrecision is the number of decimals kept after a unit conversion
// when a rule does not set one.
const DefaultPrecision = 6

// Conversion multiplies a numeric column by Factor for rows of one source.
type Conversion struct {
	Column string  `yaml:"column"`
	Source string  `yaml:"source"`
	Factor float64 `yaml:"factor"`
	// Precision is the number of decimals kept; nil selects DefaultPrecision.
	Precision *int   `yaml:"precision,omitempty"`
	Note      string `yaml:"note,omitempty"`
}

func (c Conversion) String() string {
	return fmt.Sprintf("convert %s[%s] x%g", c.Column, c.Source, c.Factor)
}

func (c Conversion) precision() int {
	if c.Precision == nil {
		return DefaultPrecision
	}
	return *c.Precision
}

// Class is one canonical label and the spellings that collapse into it.
// Equivalents are compared against a cell's equivalence key, so "1" covers
// both the string "1" and the numbers 1 and 1.0, and "true" covers booleans.
type Class struct {
	Canonical   string   `yaml:"canonical"`
	Equivalents []string `yaml:"equivalents"`
}

// Recode applies a value-substitution table to categorical columns.
type Recode struct {
	Columns []string `yaml:"columns"`
	Classes []Class  `yaml:"classes"`
}

func (r Recode) String() string {
	return "recode " + strings.Join(r.Columns, ",")
}

// Rules is the declarative normalization table.
type Rules struct {
	Conversions []Conversion `yaml:"conversions"`
	Recodes     []Recode     `yaml:"recodes"`
}

func intPtr(i int) *int { return &i }

// DefaultRules harmonizes overall_survival to days (METABRIC months, SCANB
// years, TCGA already in days) and canonicalizes receptor status and
// treatment flags.
func DefaultRules() Rules {
	return Rules{
		Conversions: []Conversion{
			{Column: "overall_survival", Source: "METABRIC", Factor: 30.44, Precision: intPtr(4), Note: "months to days"},
			{Column: "overall_survival", Source: "SCANB", Factor: 365.25, Precision: intPtr(4), Note: "years to days"},
		},
		Recodes: []Recode{
			{
				Columns: []string{"er_status"},
				Classes: []Class{
					{Canonical: "Positive", Equivalents: []string{"Pos", "pos", "POS", "positive", "POSITIVE", "1", "true"}},
					{Canonical: "Negative", Equivalents: []string{"Neg", "neg", "NEG", "negative", "NEGATIVE", "0", "false"}},
					{Canonical: "Neutral", Equivalents: []string{"neutral", "NEUTRAL"}},
				},
			},
			{
				Columns: []string{"chemotherapy", "hormone_therapy", "radiotherapy"},
				Classes: []Class{
					{Canonical: "Yes", Equivalents: []string{"YES", "yes", "1", "true"}},
					{Canonical: "No", Equivalents: []string{"NO", "no", "0", "false"}},
				},
			},
		},
	}
}

// ValidateConversion checks a single conversion rule.
func ValidateConversion(c Conversion) error {
	if c.Column == "" {
		return fmt.Errorf("conversion: column is required")
	}
	if c.Source == "" {
		return fmt.Errorf("conversion %s: source is required", c.Column)
	}
	if c.Factor == 0 {
		return fmt.Errorf("conversion %s[%s]: factor is required", c.Column, c.Source)
	}
	if c.Precision != nil && (*c.Precision < 0 || *c.Precision > 15) {
		return fmt.Errorf("conversion %s[%s]: precision must be between 0 and 15", c.Column, c.Source)
	}
	return nil
}

// ValidateRecode checks a single recode rule.
func ValidateRecode(r Recode) error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("recode: columns are required")
	}
	if len(r.Classes) == 0 {
		return fmt.Errorf("%s: classes are required", r)
	}
	owner := map[string]string{}
	for _, cl := range r.Classes {
		if cl.Canonical == "" {
			return fmt.Errorf("%s: canonical label is required", r)
		}
		for _, eq := range cl.Equivalents {
			if prev, ok := owner[eq]; ok && prev != cl.Canonical {
				return fmt.Errorf("%s: %q maps to both %q and %q", r, eq, prev, cl.Canonical)
			}
			owner[eq] = cl.Canonical
		}
	}
	return nil
}

// ValidateAll validates every rule and checks for conflicts: a column
// converted twice for the same source, a column in two recodes, and rules
// that target a protected column.
func (r Rules) ValidateAll(protected ...string) error {
	guard := map[string]bool{}
	for _, p := range protected {
		guard[p] = true
	}

	converted := map[[2]string]bool{}
	for i, c := range r.Conversions {
		if err := ValidateConversion(c); err != nil {
			return fmt.Errorf("conversion %d: %w", i, err)
		}
		if guard[c.Column] {
			return fmt.Errorf("conversion %d: column %q cannot be normalized", i, c.Column)
		}
		k := [2]string{c.Column, c.Source}
		if converted[k] {
			return fmt.Errorf("conversion %d: %s[%s] converted twice", i, c.Column, c.Source)
		}
		converted[k] = true
	}

	recoded := map[string]bool{}
	for i, rc := range r.Recodes {
		if err := ValidateRecode(rc); err != nil {
			return fmt.Errorf("recode %d: %w", i, err)
		}
		for _, col := range rc.Columns {
			if guard[col] {
				return fmt.Errorf("recode %d: column %q cannot be normalized", i, col)
			}
			if recoded[col] {
				return fmt.Errorf("recode %d: column %q already recoded", i, col)
			}
			recoded[col] = true
		}
	}
	return nil
}

// Columns lists every column some rule may rewrite, in rule order.
func (r Rules) Columns() []string {
	var out []string
	seen := map[string]bool{}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range r.Conversions {
		add(c.Column)
	}
	for _, rc := range r.Recodes {
		for _, c := range rc.Columns {
			add(c)
		}
	}
	return out
}
