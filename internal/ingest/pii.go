package ingest

import "regexp"

// Patterns match the exporter's masking conventions so re-ingested data is
// stable under a second pass.
var (
	phonePattern = regexp.MustCompile(`(?:\+?\d[\d\-\s().]{7,}\d)`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// MaskPII replaces phone numbers and email addresses with placeholder tokens.
func MaskPII(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	s = phonePattern.ReplaceAllString(s, "[PHONE]")
	return s
}
