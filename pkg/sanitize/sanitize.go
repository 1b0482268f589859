package sanitize

import (
	"regexp"
	"strings"
)

// Plain email (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +xx..., (xxx) xxx-xxxx, 09xx...
// Only digits, spaces, dashes, dots, parentheses and plus; at least 9 digits overall.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.()]{7,}\d`)

// RedactPII masks emails and phone numbers, used on free text stored in case history.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary cuts s to at most max bytes on a word boundary, for inbox previews.
func Summary(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return strings.TrimRight(s[:i], " ") + "…"
}
