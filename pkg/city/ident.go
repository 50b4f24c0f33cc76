package city

import (
	"strings"
	"unicode"
)

// Slug turns a display name into an identifier segment: lowercase, runs of
// non-alphanumerics collapsed to a single underscore ("San Francisco" →
// "san_francisco", "SFMTA" → "sfmta").
func Slug(s string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	return sb.String()
}

// CityID builds the canonical identifier us-<state>-<slug(name)>.
func CityID(state, name string) string {
	slug := Slug(name)
	if slug == "" || len(state) != 2 {
		return ""
	}
	return "us-" + strings.ToLower(state) + "-" + slug
}

// ParseCityID splits a canonical us-<state>-<slug> identifier. ok is false for
// identifiers that do not follow that shape (legacy short IDs like "la").
func ParseCityID(id string) (state, slug string, ok bool) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || parts[0] != "us" || len(parts[1]) != 2 || parts[2] == "" {
		return "", "", false
	}
	return strings.ToUpper(parts[1]), parts[2], true
}

// NameFromSlug renders an identifier slug as a place name
// ("los_angeles" → "Los Angeles").
func NameFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
