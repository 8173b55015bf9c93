// Package identifier normalizes product identifiers and derives fallback
// identifiers for pages that do not expose one.
package identifier

import "strings"

// Normalize lowercases raw and drops everything that is not an ASCII
// letter or digit, so "YAM-P45", "YAMP45" and "Yam P-45" all match.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DigitsOnly keeps the ASCII digits of s. Used for EAN/GTIN values.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
