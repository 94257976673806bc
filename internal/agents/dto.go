package agents

import (
	"time"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	dbtypes "github.com/coutlabs/cout-backend/pkg/db/types"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// AgentDTO is the transport shape of an agent.
type AgentDTO struct {
	ID             uuid.UUID           `json:"id"`
	OrganizationID uuid.UUID           `json:"organization_id"`
	Name           string              `json:"name"`
	Description    *string             `json:"description,omitempty"`
	Category       enums.AgentCategory `json:"category"`
	Config         AgentConfigDTO      `json:"config"`
	IsActive       bool                `json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// AgentConfigDTO is the transport shape of the inference configuration.
type AgentConfigDTO struct {
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Model        string  `json:"model"`
}

// CreateAgentRequest holds the validated payload to create an agent.
type CreateAgentRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=120"`
	Description *string             `json:"description,omitempty"`
	Category    enums.AgentCategory `json:"category" validate:"required"`
	Config      AgentConfigDTO      `json:"config" validate:"required"`
}

// UpdateAgentRequest holds optional mutation values for an agent.
type UpdateAgentRequest struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Category    *enums.AgentCategory `json:"category,omitempty"`
	Config      *AgentConfigDTO      `json:"config,omitempty"`
	IsActive    *bool                `json:"is_active,omitempty"`
}

// FromModel converts the persistence model into its transport shape.
func FromModel(a *models.Agent) *AgentDTO {
	if a == nil {
		return nil
	}
	return &AgentDTO{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Name:           a.Name,
		Description:    a.Description,
		Category:       a.Category,
		Config: AgentConfigDTO{
			SystemPrompt: a.Config.SystemPrompt,
			Temperature:  a.Config.Temperature,
			MaxTokens:    a.Config.MaxTokens,
			Model:        a.Config.Model,
		},
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (c AgentConfigDTO) toModel() dbtypes.AgentConfig {
	return dbtypes.AgentConfig{
		SystemPrompt: c.SystemPrompt,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		Model:        c.Model,
	}
}
