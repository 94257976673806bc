package inference

import (
	"context"
	"strings"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// echoPrefix makes the mock parrot the remainder of the prompt back,
// which gives tests a deterministic output to assert on.
const echoPrefix = "ECHO:"

// failPrefix makes the mock return an upstream failure.
const failPrefix = "FAIL:"

var cannedResponses = map[enums.AgentCategory]string{
	enums.AgentCategoryResearch:        "Here is a summary of the requested research topic.",
	enums.AgentCategoryMarketing:       "Here is a draft marketing angle for your product.",
	enums.AgentCategoryFinance:         "Here is a breakdown of the requested financial figures.",
	enums.AgentCategoryCustomerSupport: "Thanks for reaching out, here is how to resolve the issue.",
	enums.AgentCategoryContent:         "Here is a draft of the requested content.",
	enums.AgentCategoryAnalytics:       "Here is an analysis of the requested data.",
}

const defaultCannedResponse = "Here is the completed response to your prompt."

// MockClient answers deterministically without any network traffic.
// Used as the dev and test provider.
type MockClient struct {
	categories map[enums.AgentCategory]string
}

// NewMockClient builds the deterministic dev/test provider.
func NewMockClient() *MockClient {
	return &MockClient{categories: cannedResponses}
}

// Complete returns canned text keyed by the agent's category. Prompts
// starting with ECHO: return the rest of the prompt verbatim; prompts
// starting with FAIL: return an upstream error.
func (m *MockClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	if err := validateParams(params); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", ErrTimeout
	}

	if strings.HasPrefix(prompt, echoPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(prompt, echoPrefix)), nil
	}
	if strings.HasPrefix(prompt, failPrefix) {
		return "", ErrUpstream
	}

	if response, ok := m.categories[params.Category]; ok {
		return response, nil
	}
	return defaultCannedResponse, nil
}
