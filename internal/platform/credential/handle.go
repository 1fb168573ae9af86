package credential

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxHandleLen = 32

// LoginHandle derives a student login handle from a display name:
// diacritics stripped, lower-cased, whitespace runs replaced by ".", every
// other rune outside [a-z0-9._] dropped. Handles are not unique; the PIN is
// what distinguishes students at login.
func LoginHandle(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	lastDot := true
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r) || r == '.' || r == '-':
			if !lastDot {
				b.WriteByte('.')
				lastDot = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastDot = false
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > maxHandleLen {
		out = strings.TrimRight(out[:maxHandleLen], ".")
	}
	if out == "" {
		return "student"
	}
	return out
}
