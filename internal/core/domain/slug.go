package domain

import (
	"strings"
	"unicode"
)

// Slugify lowercases s and joins its ASCII letter and digit runs with
// hyphens. Other characters (including Japanese script) are dropped, so a
// name with no ASCII content yields "".
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugFor picks the slug source for a feature: name_en, then name_jp.
func SlugFor(a Attributes) string {
	if s := Slugify(a.String("name_en")); s != "" {
		return s
	}
	return Slugify(a.String("name_jp"))
}
