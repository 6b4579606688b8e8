// Package textutil normalises free text before it is persisted or published.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizePlain strips all markup from s, collapses surrounding whitespace and truncates the
// result to maxRunes runes (0 means unlimited).
func SanitizePlain(s string, maxRunes int) string {
	cleaned := strings.TrimSpace(strictPolicy.Sanitize(s))
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// CompactAttributes trims keys and values and drops entries whose key or value ends up empty.
// It returns nil when nothing remains.
func CompactAttributes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
