package validators

import "strings"

// SanitizeString trims whitespace and caps length. Device and operator
// names come straight off on-site keyboards, so both are common.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
