package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind classifies a cell after best-effort coercion.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "absent"
	}
}

// Value is a single scalar cell. The zero Value is absent.
// The original text is kept so identifiers such as "0042" round-trip unchanged.
type Value struct {
	kind Kind
	text string
	num  float64
	b    bool
}

// Absent returns the explicit missing marker.
func Absent() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, text: s} }

// Num returns a numeric value rendered in its shortest decimal form.
func Num(f float64) Value {
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64), num: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, text: strconv.FormatBool(b), b: b}
}

// DefaultMissingTokens are the cell spellings treated as missing when no
// explicit list is configured.
var DefaultMissingTokens = []string{
	"", "NA", "N/A", "n/a", "NaN", "nan", "-nan", "-NaN", "NULL", "null", "None", "<NA>", "#N/A",
}

// Parse coerces raw cell text. Missing tokens become Absent; boolean literals
// become Bool; finite decimal numbers become Number; everything else is a String.
func Parse(raw string, missing map[string]bool) Value {
	s := strings.TrimSpace(raw)
	if s == "" || missing[s] {
		return Absent()
	}
	switch s {
	case "true", "True", "TRUE":
		return Value{kind: KindBool, text: s, b: true}
	case "false", "False", "FALSE":
		return Value{kind: KindBool, text: s, b: false}
	}
	if looksNumeric(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return Value{kind: KindNumber, text: s, num: f}
		}
	}
	return Value{kind: KindString, text: s}
}

// MissingSet builds the lookup used by Parse.
func MissingSet(tokens []string) map[string]bool {
	if tokens == nil {
		tokens = DefaultMissingTokens
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[strings.TrimSpace(t)] = true
	}
	return set
}

// looksNumeric rejects spellings ParseFloat accepts but a CSV author never
// means as numbers (hex floats, "Inf", underscores).
func looksNumeric(s string) bool {
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '.':
		case (c == '-' || c == '+') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case (c == 'e' || c == 'E') && i > 0:
		default:
			return false
		}
	}
	return true
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsAbsent() bool  { return v.kind == KindAbsent }
func (v Value) IsPresent() bool { return v.kind != KindAbsent }

// Text returns the serialized form; absent values serialize as "".
func (v Value) Text() string { return v.text }

// Float returns the numeric value when the cell is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Key returns the equivalence key used by categorical lookups: the text for
// strings, the shortest decimal form for numbers ("1" for 1.0) and
// "true"/"false" for booleans.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.text
	}
}

// Equal compares kind and serialized text.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.text == o.text
}
