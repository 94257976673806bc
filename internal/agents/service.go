package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
)

const (
	minTemperature = 0.0
	maxTemperature = 2.0
	maxTokensLimit = 32768
)

// Service exposes org-scoped agent management operations.
type Service interface {
	Create(ctx context.Context, orgID uuid.UUID, req CreateAgentRequest) (*AgentDTO, error)
	Get(ctx context.Context, orgID, agentID uuid.UUID) (*AgentDTO, error)
	List(ctx context.Context, orgID uuid.UUID) ([]AgentDTO, error)
	Update(ctx context.Context, orgID, agentID uuid.UUID, req UpdateAgentRequest) (*AgentDTO, error)
	Delete(ctx context.Context, orgID, agentID uuid.UUID) error
	ResolveActive(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error)
}

type service struct {
	repo *Repository
}

// NewService constructs an agents service instance.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, orgID uuid.UUID, req CreateAgentRequest) (*AgentDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !req.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid agent category")
	}
	if err := validateConfig(req.Config); err != nil {
		return nil, err
	}

	agent := &models.Agent{
		OrganizationID: orgID,
		Name:           name,
		Description:    req.Description,
		Category:       req.Category,
		Config:         req.Config.toModel(),
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create agent")
	}
	return FromModel(agent), nil
}

func (s *service) Get(ctx context.Context, orgID, agentID uuid.UUID) (*AgentDTO, error) {
	agent, err := s.loadForOrg(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	return FromModel(agent), nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID) ([]AgentDTO, error) {
	agents, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list agents")
	}
	dtos := make([]AgentDTO, 0, len(agents))
	for i := range agents {
		dtos = append(dtos, *FromModel(&agents[i]))
	}
	return dtos, nil
}

func (s *service) Update(ctx context.Context, orgID, agentID uuid.UUID, req UpdateAgentRequest) (*AgentDTO, error) {
	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		if !req.Category.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid agent category")
		}
		updates["category"] = *req.Category
	}
	if req.Config != nil {
		if err := validateConfig(*req.Config); err != nil {
			return nil, err
		}
		updates["config"] = req.Config.toModel()
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if err := s.repo.Update(ctx, orgID, agentID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update agent")
	}
	return s.Get(ctx, orgID, agentID)
}

func (s *service) Delete(ctx context.Context, orgID, agentID uuid.UUID) error {
	if err := s.repo.Delete(ctx, orgID, agentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete agent")
	}
	return nil
}

// ResolveActive loads an org-owned agent and requires it to be active.
// Submission uses this to gate prompt intake.
func (s *service) ResolveActive(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error) {
	agent, err := s.loadForOrg(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent is not active")
	}
	return agent, nil
}

func (s *service) loadForOrg(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error) {
	agent, err := s.repo.FindForOrg(ctx, orgID, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load agent")
	}
	return agent, nil
}

func validateConfig(cfg AgentConfigDTO) error {
	if strings.TrimSpace(cfg.Model) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "config.model is required")
	}
	if cfg.Temperature < minTemperature || cfg.Temperature > maxTemperature {
		return pkgerrors.New(pkgerrors.CodeValidation, "config.temperature must be between 0 and 2")
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens > maxTokensLimit {
		return pkgerrors.New(pkgerrors.CodeValidation, "config.max_tokens must be between 1 and 32768")
	}
	return nil
}
