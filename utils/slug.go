package utils

import (
	"strings"
	"unicode"
)

const maxSlugRunes = 150

// Slugify lowercases s and joins its letter/digit runs with '-'. Letters of any
// script are kept, so Arabic titles produce Arabic slugs; combining marks such
// as tashkeel and the tatweel are dropped.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	n := 0
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r == 'ـ' || unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			need := 1
			if pendingDash {
				need++
			}
			if n+need > maxSlugRunes {
				return b.String()
			}
			if pendingDash {
				b.WriteByte('-')
				n++
				pendingDash = false
			}
			b.WriteRune(r)
			n++
		default:
			pendingDash = b.Len() > 0
		}
	}
	return b.String()
}
