package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
)

func setupAgentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	agents := `
CREATE TABLE IF NOT EXISTS agents (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT NOT NULL,
  config TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(agents).Error)
	return db
}

func newAgentsService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := setupAgentsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func sampleCreateRequest() CreateAgentRequest {
	return CreateAgentRequest{
		Name:     "Research Assistant",
		Category: enums.AgentCategoryResearch,
		Config: AgentConfigDTO{
			SystemPrompt: "You are a research assistant.",
			Temperature:  0.7,
			MaxTokens:    1024,
			Model:        "gpt-4o-mini",
		},
	}
}

func TestCreateAndGetAgent(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, sampleCreateRequest())
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, orgID, created.OrganizationID)

	fetched, err := svc.Get(ctx, orgID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Research Assistant", fetched.Name)
	assert.Equal(t, enums.AgentCategoryResearch, fetched.Category)
	assert.Equal(t, "gpt-4o-mini", fetched.Config.Model)
	assert.Equal(t, 1024, fetched.Config.MaxTokens)
}

func TestGetAgentWrongOrg(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, uuid.New(), sampleCreateRequest())
	require.NoError(t, err)

	_, err = svc.Get(ctx, uuid.New(), created.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCreateAgentRejectsBadConfig(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	cases := []struct {
		name   string
		mutate func(*CreateAgentRequest)
	}{
		{"missing model", func(r *CreateAgentRequest) { r.Config.Model = "" }},
		{"temperature too high", func(r *CreateAgentRequest) { r.Config.Temperature = 2.5 }},
		{"zero max tokens", func(r *CreateAgentRequest) { r.Config.MaxTokens = 0 }},
		{"invalid category", func(r *CreateAgentRequest) { r.Category = "COOKING" }},
		{"blank name", func(r *CreateAgentRequest) { r.Name = "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := sampleCreateRequest()
			tc.mutate(&req)
			_, err := svc.Create(ctx, orgID, req)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestUpdateAgentPatchesFields(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, sampleCreateRequest())
	require.NoError(t, err)

	newName := "Market Analyst"
	newCategory := enums.AgentCategoryMarketing
	inactive := false
	updated, err := svc.Update(ctx, orgID, created.ID, UpdateAgentRequest{
		Name:     &newName,
		Category: &newCategory,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Market Analyst", updated.Name)
	assert.Equal(t, enums.AgentCategoryMarketing, updated.Category)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "gpt-4o-mini", updated.Config.Model, "untouched fields must survive")
}

func TestUpdateAgentNoFields(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, sampleCreateRequest())
	require.NoError(t, err)

	_, err = svc.Update(ctx, orgID, created.ID, UpdateAgentRequest{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestDeleteAgent(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, sampleCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, orgID, created.ID))

	err = svc.Delete(ctx, orgID, created.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestListAgentsScopedToOrg(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgA := uuid.New()
	orgB := uuid.New()

	_, err := svc.Create(ctx, orgA, sampleCreateRequest())
	require.NoError(t, err)
	_, err = svc.Create(ctx, orgA, sampleCreateRequest())
	require.NoError(t, err)
	_, err = svc.Create(ctx, orgB, sampleCreateRequest())
	require.NoError(t, err)

	listA, err := svc.List(ctx, orgA)
	require.NoError(t, err)
	assert.Len(t, listA, 2)

	listB, err := svc.List(ctx, orgB)
	require.NoError(t, err)
	assert.Len(t, listB, 1)
}

func TestResolveActiveRejectsInactiveAgent(t *testing.T) {
	svc, _ := newAgentsService(t)
	ctx := context.Background()
	orgID := uuid.New()

	created, err := svc.Create(ctx, orgID, sampleCreateRequest())
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, orgID, created.ID, UpdateAgentRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.ResolveActive(ctx, orgID, created.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
