// Package sanitize strips control characters from untrusted
// free-text fields (instruction bodies, subject lines) before they
// are written to logs, preventing terminal escape sequences or log
// injection carried in ingress payloads.
package sanitize

import (
	"strings"
	"unicode"
)

// ForLog removes control characters from s and truncates it to
// maxLen runes, so it is safe to embed in a structured log line.
func ForLog(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
