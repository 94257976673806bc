package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/audit"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/outbox"
	"github.com/coutlabs/cout-backend/pkg/outbox/payloads"
	"github.com/coutlabs/cout-backend/pkg/pagination"
)

// Service exposes job submission and org-scoped job queries.
type Service interface {
	Submit(ctx context.Context, input SubmitJobInput) (*JobDTO, error)
	Get(ctx context.Context, orgID, jobID uuid.UUID) (*JobDTO, error)
	List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*JobListResult, error)
}

// SubmitJobInput carries the authenticated actor plus the submission payload.
type SubmitJobInput struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           enums.UserRole
	AgentID        uuid.UUID
	Prompt         string
}

type agentResolver interface {
	ResolveActive(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error)
}

type subscriptionReader interface {
	Subscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo    *Repository
	db      *db.Client
	agents  agentResolver
	credits subscriptionReader
	outbox  outboxEmitter
	audit   *audit.Repository
	jobsCfg config.JobsConfig
}

// ServiceParams bundles the dependencies required to build a jobs service.
// Audit is optional; submissions are simply not audited without it.
type ServiceParams struct {
	Repo       *Repository
	DB         *db.Client
	Agents     agentResolver
	Credits    subscriptionReader
	Outbox     outboxEmitter
	Audit      *audit.Repository
	JobsConfig config.JobsConfig
}

// NewService constructs a jobs service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Agents == nil {
		return nil, fmt.Errorf("agents resolver required")
	}
	if params.Credits == nil {
		return nil, fmt.Errorf("subscription reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.JobsConfig.MaxPromptLen <= 0 {
		params.JobsConfig.MaxPromptLen = 5000
	}
	if params.JobsConfig.DefaultCost <= 0 {
		params.JobsConfig.DefaultCost = 1
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		agents:  params.Agents,
		credits: params.Credits,
		outbox:  params.Outbox,
		audit:   params.Audit,
		jobsCfg: params.JobsConfig,
	}, nil
}

// Submit validates the prompt, agent, and balance, then creates the PENDING
// job and queues its event in one transaction.
func (s *service) Submit(ctx context.Context, input SubmitJobInput) (*JobDTO, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > s.jobsCfg.MaxPromptLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("prompt exceeds %d characters", s.jobsCfg.MaxPromptLen))
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id is required")
	}

	agent, err := s.agents.ResolveActive(ctx, input.OrganizationID, input.AgentID)
	if err != nil {
		return nil, err
	}

	sub, err := s.credits.Subscription(ctx, input.OrganizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "no subscription for organization")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if !sub.Status.AllowsSubmission() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription is not active")
	}

	cost := int64(s.jobsCfg.DefaultCost)
	if sub.Credits < cost {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
	}

	job := &models.Job{
		OrganizationID: input.OrganizationID,
		AgentID:        agent.ID,
		UserID:         input.UserID,
		Prompt:         prompt,
		Status:         enums.JobStatusPending,
		Cost:           cost,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventJobSubmitted,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Actor: &outbox.ActorRef{
				UserID:         input.UserID,
				OrganizationID: &input.OrganizationID,
				Role:           string(input.Role),
			},
			Data: payloads.JobSubmittedEvent{
				JobID:          job.ID,
				OrganizationID: job.OrganizationID,
				AgentID:        agent.ID,
				UserID:         job.UserID,
				Prompt:         job.Prompt,
				Agent: payloads.AgentSnapshot{
					SystemPrompt: agent.Config.SystemPrompt,
					Temperature:  agent.Config.Temperature,
					MaxTokens:    agent.Config.MaxTokens,
					Model:        agent.Config.Model,
					Category:     agent.Category,
				},
				Cost: job.Cost,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return fmt.Errorf("queue job event: %w", err)
		}

		if s.audit != nil {
			userID := input.UserID
			jobID := job.ID
			entry := audit.Entry{
				OrganizationID: input.OrganizationID,
				UserID:         &userID,
				Action:         audit.ActionJobCreated,
				TargetType:     audit.TargetJob,
				TargetID:       &jobID,
				Metadata:       map[string]any{"agent_id": agent.ID.String(), "cost": job.Cost},
			}
			if err := s.audit.WithTx(tx).Record(ctx, entry); err != nil {
				return fmt.Errorf("record audit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "submit job")
	}

	return FromModel(job), nil
}

func (s *service) Get(ctx context.Context, orgID, jobID uuid.UUID) (*JobDTO, error) {
	job, err := s.repo.FindForOrg(ctx, orgID, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load job")
	}
	return FromModel(job), nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*JobListResult, error) {
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}

	jobsPage, next, err := s.repo.List(ctx, listJobsParams{
		OrgID:  orgID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list jobs")
	}

	result := &JobListResult{Jobs: make([]JobDTO, 0, len(jobsPage))}
	for i := range jobsPage {
		result.Jobs = append(result.Jobs, *FromModel(&jobsPage[i]))
	}
	if next != nil {
		encoded := pagination.EncodeCursor(*next)
		result.NextCursor = &encoded
	}
	return result, nil
}
