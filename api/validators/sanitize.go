package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims whitespace, drops control characters and truncates to maxLen runes.
// maxLen <= 0 disables truncation.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// NormalizeEmail lowercases a sanitized address so duplicate checks are case-insensitive.
func NormalizeEmail(input string) string {
	return strings.ToLower(SanitizeString(input, 320))
}
