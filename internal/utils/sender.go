// Package utils holds small shared helpers with no dependencies on the rest
// of the application.
package utils

import "strings"

// NormalizeSender maps the relay's sender field to the stable identity used
// for allowlisting, ownership, and rate limiting.
//
// Examples:
//
//	"whatsapp:+16036607136" -> "+16036607136"
//	"+1 (603) 660-7136"     -> "+16036607136"
func NormalizeSender(from string) string {
	s := strings.ToLower(strings.TrimSpace(from))
	s = strings.TrimPrefix(s, "whatsapp:")

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		// A plus sign only counts as the international prefix.
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
