package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SpecialChars are the symbols that satisfy the special-character rule.
const SpecialChars = "@$!%*?&"

// Policy holds registration complexity rules.
type Policy struct {
	MinLength int
	MaxLength int
	// RequireClasses demands one lower, one upper, one digit and one SpecialChars symbol.
	RequireClasses bool
}

// DefaultPolicy returns the registration rules: 8..100 chars with all classes.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 100, RequireClasses: true}
}

// Validate checks plaintext against the policy. It does not mutate input.
func (p Policy) Validate(plaintext string) error {
	// Count runes, not bytes.
	n := utf8.RuneCountInString(plaintext)
	if n < p.MinLength {
		return ErrPasswordTooShort
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return ErrPasswordTooLong
	}
	if p.RequireClasses && !hasAllClasses(plaintext) {
		return ErrWeakPassword
	}
	return nil
}

func hasAllClasses(s string) bool {
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialChars, r):
			special = true
		}
	}
	return lower && upper && digit && special
}
