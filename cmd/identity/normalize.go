package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Stores persist and look up emails only in this form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
