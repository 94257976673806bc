package enums

import "fmt"

// AgentCategory labels what kind of work an agent configuration is tuned for.
type AgentCategory string

const (
	AgentCategoryResearch        AgentCategory = "RESEARCH"
	AgentCategoryMarketing       AgentCategory = "MARKETING"
	AgentCategoryFinance         AgentCategory = "FINANCE"
	AgentCategoryCustomerSupport AgentCategory = "CUSTOMER_SUPPORT"
	AgentCategoryContent         AgentCategory = "CONTENT"
	AgentCategoryAnalytics       AgentCategory = "ANALYTICS"
)

var validAgentCategories = []AgentCategory{
	AgentCategoryResearch,
	AgentCategoryMarketing,
	AgentCategoryFinance,
	AgentCategoryCustomerSupport,
	AgentCategoryContent,
	AgentCategoryAnalytics,
}

// String implements fmt.Stringer.
func (c AgentCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c AgentCategory) IsValid() bool {
	for _, candidate := range validAgentCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseAgentCategory converts raw input into an AgentCategory.
func ParseAgentCategory(value string) (AgentCategory, error) {
	for _, candidate := range validAgentCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent category %q", value)
}
