// Package normalize implements the per-field value normalization methods
// applied before hashing. All methods are pure string→string functions; they
// never fail. An empty result means "treat the field as absent for this
// record" and is interpreted by the pipeline, not here.
package normalize

import (
	"strings"
	"unicode"
)

// Method selects a normalization function.
type Method string

const (
	// Identity returns the value unchanged.
	Identity Method = "identity"
	// Email lowercases and deletes all Unicode whitespace.
	Email Method = "email"
	// Uppercase trims edge whitespace and uppercases.
	Uppercase Method = "uppercase"
	// Numeric deletes everything that is not an ASCII digit.
	Numeric Method = "numeric"
	// Name lowercases and keeps only Unicode letters.
	Name Method = "name"
	// Phone maps letters onto dial-pad digits and drops everything else.
	Phone Method = "phone"
)

// Hook is an optional pre-normalization transform (e.g. wide→narrow folding).
// A hook must fail open: when it cannot improve the input it returns it
// unchanged.
type Hook func(string) string

// Value normalizes raw with the given method. Unrecognized methods fall back
// to returning the input unchanged.
func Value(raw string, method Method) string {
	switch method {
	case Email:
		return deleteSpace(strings.ToLower(raw))
	case Uppercase:
		return strings.ToUpper(strings.TrimSpace(raw))
	case Numeric:
		return keepASCIIDigits(raw)
	case Name:
		return keepLetters(strings.ToLower(raw))
	case Phone:
		return dialpad(raw)
	case Identity:
		return raw
	default:
		return raw
	}
}

func deleteSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func keepASCIIDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func keepLetters(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

// dialpadDigits maps 'a'..'z' onto the standard telephone keypad.
const dialpadDigits = "22233344455566677778889999"

// dialpad keeps digits, translates ASCII letters to their keypad digit, and
// drops every other character (including '+', spaces, and punctuation).
func dialpad(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteByte(dialpadDigits[r-'a'])
		case r >= 'A' && r <= 'Z':
			b.WriteByte(dialpadDigits[r-'A'])
		}
	}
	return b.String()
}
