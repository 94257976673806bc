package validators

import "strings"

// SanitizeString trims whitespace and enforces a length cap. Prompts and
// names pass through here before validation so a padded prompt does not eat
// the org's length budget.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen]
}
