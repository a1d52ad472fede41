package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds a free-text attribute into the form used as an index key:
// accents stripped, lower case, inner whitespace collapsed.
// "Nueva Andalucía " and "nueva andalucia" produce the same key.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// enumKey is NormalizeKey with separators unified, so "Sea Views",
// "sea-views" and "sea_views" all resolve to the same enum entry.
func enumKey(s string) string {
	k := NormalizeKey(s)
	k = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(k)
	return strings.Join(strings.Fields(k), "_")
}
