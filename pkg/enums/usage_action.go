package enums

import "fmt"

// UsageAction tags what consumed credits in a usage record.
type UsageAction string

const (
	UsageActionJobCompleted UsageAction = "AI_JOB_COMPLETED"
)

var validUsageActions = []UsageAction{
	UsageActionJobCompleted,
}

// String implements fmt.Stringer.
func (a UsageAction) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a UsageAction) IsValid() bool {
	for _, candidate := range validUsageActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseUsageAction converts raw input into a UsageAction.
func ParseUsageAction(value string) (UsageAction, error) {
	for _, candidate := range validUsageActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage action %q", value)
}
