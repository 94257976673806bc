package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/config"
	pkgdb "github.com/coutlabs/cout-backend/pkg/db"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	dbtypes "github.com/coutlabs/cout-backend/pkg/db/types"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/outbox"
	"github.com/coutlabs/cout-backend/pkg/outbox/payloads"
	"github.com/coutlabs/cout-backend/pkg/pagination"
)

type stubAgentResolver struct {
	agent *models.Agent
	err   error
}

func (s stubAgentResolver) ResolveActive(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.agent, nil
}

type stubSubscriptionReader struct {
	sub *models.Subscription
	err error
}

func (s stubSubscriptionReader) Subscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sub, nil
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type submitTestSetup struct {
	service  Service
	repo     *Repository
	emitter  *recordingEmitter
	orgID    uuid.UUID
	userID   uuid.UUID
	agent    *models.Agent
	sub      *models.Subscription
	resolver *stubAgentResolver
	reader   *stubSubscriptionReader
}

func newSubmitTestSetup(t *testing.T) *submitTestSetup {
	t.Helper()

	db := setupJobsTestDB(t)
	repo := NewRepository(db)
	orgID := uuid.New()
	agent := &models.Agent{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Research Assistant",
		Category:       enums.AgentCategoryResearch,
		Config: dbtypes.AgentConfig{
			SystemPrompt: "You are a research assistant.",
			Temperature:  0.7,
			MaxTokens:    1024,
			Model:        "gpt-4o-mini",
		},
		IsActive: true,
	}
	sub := &models.Subscription{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Tier:           enums.PlanTierFree,
		Credits:        5,
		Status:         enums.SubscriptionStatusActive,
	}
	resolver := &stubAgentResolver{agent: agent}
	reader := &stubSubscriptionReader{sub: sub}
	emitter := &recordingEmitter{}

	svc, err := NewService(ServiceParams{
		Repo:       repo,
		DB:         pkgdb.NewFromGorm(db),
		Agents:     resolver,
		Credits:    reader,
		Outbox:     emitter,
		JobsConfig: config.JobsConfig{MaxPromptLen: 5000, DefaultCost: 1},
	})
	require.NoError(t, err)

	return &submitTestSetup{
		service:  svc,
		repo:     repo,
		emitter:  emitter,
		orgID:    orgID,
		userID:   uuid.New(),
		agent:    agent,
		sub:      sub,
		resolver: resolver,
		reader:   reader,
	}
}

func (s *submitTestSetup) input(prompt string) SubmitJobInput {
	return SubmitJobInput{
		OrganizationID: s.orgID,
		UserID:         s.userID,
		Role:           enums.UserRoleUser,
		AgentID:        s.agent.ID,
		Prompt:         prompt,
	}
}

func TestSubmitCreatesPendingJobAndEvent(t *testing.T) {
	setup := newSubmitTestSetup(t)
	ctx := context.Background()

	dto, err := setup.service.Submit(ctx, setup.input("summarize this paper"))
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPending, dto.Status)
	assert.Equal(t, int64(1), dto.Cost)

	stored, err := setup.repo.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPending, stored.Status)

	require.Len(t, setup.emitter.events, 1)
	event := setup.emitter.events[0]
	assert.Equal(t, enums.EventJobSubmitted, event.EventType)
	assert.Equal(t, enums.AggregateJob, event.AggregateType)
	assert.Equal(t, dto.ID, event.AggregateID)

	payload, ok := event.Data.(payloads.JobSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, dto.ID, payload.JobID)
	assert.Equal(t, "summarize this paper", payload.Prompt)
	assert.Equal(t, "gpt-4o-mini", payload.Agent.Model)
	assert.Equal(t, enums.AgentCategoryResearch, payload.Agent.Category)
	assert.Equal(t, int64(1), payload.Cost)
}

func TestSubmitValidatesPrompt(t *testing.T) {
	setup := newSubmitTestSetup(t)
	ctx := context.Background()

	_, err := setup.service.Submit(ctx, setup.input("   "))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = setup.service.Submit(ctx, setup.input(strings.Repeat("x", 5001)))
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	boundary, err := setup.service.Submit(ctx, setup.input(strings.Repeat("x", 5000)))
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPending, boundary.Status)
}

func TestSubmitInsufficientCredits(t *testing.T) {
	setup := newSubmitTestSetup(t)
	setup.sub.Credits = 0

	_, err := setup.service.Submit(context.Background(), setup.input("prompt"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientCredits, typed.Code())
	assert.Empty(t, setup.emitter.events, "no event without a job")
}

func TestSubmitInactiveSubscription(t *testing.T) {
	setup := newSubmitTestSetup(t)
	setup.sub.Status = enums.SubscriptionStatusCanceled

	_, err := setup.service.Submit(context.Background(), setup.input("prompt"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestSubmitAgentResolutionFailure(t *testing.T) {
	setup := newSubmitTestSetup(t)
	setup.resolver.err = pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")

	_, err := setup.service.Submit(context.Background(), setup.input("prompt"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestSubmitRollsBackJobWhenEmitFails(t *testing.T) {
	setup := newSubmitTestSetup(t)
	setup.emitter.err = errors.New("outbox insert failed")
	ctx := context.Background()

	_, err := setup.service.Submit(ctx, setup.input("prompt"))
	require.Error(t, err)

	jobs, cursor, listErr := setup.repo.List(ctx, listJobsParams{OrgID: setup.orgID, Limit: 10})
	require.NoError(t, listErr)
	assert.Empty(t, jobs, "job insert must roll back with the event")
	assert.Nil(t, cursor)
}

func TestListEncodesNextCursor(t *testing.T) {
	setup := newSubmitTestSetup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := setup.service.Submit(ctx, setup.input("prompt"))
		require.NoError(t, err)
	}

	page, err := setup.service.List(ctx, setup.orgID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Jobs, 2)
	require.NotNil(t, page.NextCursor)

	rest, err := setup.service.List(ctx, setup.orgID, pagination.Params{Limit: 2, Cursor: *page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Jobs, 1)
	assert.Nil(t, rest.NextCursor)

	_, err = setup.service.List(ctx, setup.orgID, pagination.Params{Cursor: "not-a-cursor"})
	require.Error(t, err)
}

func TestGetScopedToOrg(t *testing.T) {
	setup := newSubmitTestSetup(t)
	ctx := context.Background()

	dto, err := setup.service.Submit(ctx, setup.input("prompt"))
	require.NoError(t, err)

	fetched, err := setup.service.Get(ctx, setup.orgID, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.ID, fetched.ID)

	_, err = setup.service.Get(ctx, uuid.New(), dto.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
