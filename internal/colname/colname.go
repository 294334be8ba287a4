// Package colname canonicalizes raw column names so that columns coming from
// differently styled sources can be compared for equality.
package colname

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison key for a raw column name:
//  1. compose to NFC so visually identical names compare equal
//  2. lowercase
//  3. collapse runs of whitespace, '_', '.' and '-' into one '_'
//  4. trim leading/trailing '_'
//
// The result depends only on the input.
func Normalize(name string) string {
	s := cases.Lower(language.Und).String(norm.NFC.String(name))

	var b strings.Builder
	b.Grow(len(s))
	inSep := false
	for _, r := range s {
		if isSeparator(r) {
			if !inSep {
				b.WriteByte('_')
				inSep = true
			}
			continue
		}
		b.WriteRune(r)
		inSep = false
	}
	return strings.Trim(b.String(), "_")
}

// Equal reports whether two raw names share the same normalized key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func isSeparator(r rune) bool {
	switch r {
	case '_', '.', '-':
		return true
	}
	return unicode.IsSpace(r)
}
