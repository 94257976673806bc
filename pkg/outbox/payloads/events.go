package payloads

import (
	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// AgentSnapshot freezes the agent configuration at submission time so the
// worker processes the job with the settings the user saw.
type AgentSnapshot struct {
	SystemPrompt string              `json:"system_prompt"`
	Temperature  float64             `json:"temperature"`
	MaxTokens    int                 `json:"max_tokens"`
	Model        string              `json:"model"`
	Category     enums.AgentCategory `json:"category"`
}

// JobSubmittedEvent is the flat payload relayed to the jobs topic.
type JobSubmittedEvent struct {
	JobID          uuid.UUID     `json:"job_id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	AgentID        uuid.UUID     `json:"agent_id"`
	UserID         uuid.UUID     `json:"user_id"`
	Prompt         string        `json:"prompt"`
	Agent          AgentSnapshot `json:"agent"`
	Cost           int64         `json:"cost"`
}

// CreditsReplenishedEvent reports a billing-driven credit grant.
type CreditsReplenishedEvent struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	CreditsGranted int64     `json:"credits_granted"`
	PlanID         string    `json:"plan_id,omitempty"`
}
