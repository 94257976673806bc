package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/api/middleware"
	agentsvc "github.com/coutlabs/cout-backend/internal/agents"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/logger"
)

func TestAgentCreate(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	orgID := uuid.New()

	t.Run("missing organization", func(t *testing.T) {
		body := strings.NewReader(`{"name":"researcher","category":"RESEARCH","config":{"system_prompt":"x","temperature":0.2,"max_tokens":256,"model":"gpt-4o-mini"}}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", body)
		rec := httptest.NewRecorder()
		AgentCreate(&stubAgentService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		body := strings.NewReader(`{"category":"RESEARCH"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", body)
		req = req.WithContext(middleware.WithOrganizationID(context.Background(), orgID.String()))
		rec := httptest.NewRecorder()
		AgentCreate(&stubAgentService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubAgentService{}
		body := strings.NewReader(`{"name":"researcher","category":"RESEARCH","config":{"system_prompt":"x","temperature":0.2,"max_tokens":256,"model":"gpt-4o-mini"}}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", body)
		req = req.WithContext(middleware.WithOrganizationID(context.Background(), orgID.String()))
		rec := httptest.NewRecorder()
		AgentCreate(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		if stub.created == nil || stub.created.Name != "researcher" {
			t.Fatalf("expected Create invoked with request, got %+v", stub.created)
		}
	})
}

func TestAgentDetailNotFound(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	orgID := uuid.New()
	agentID := uuid.New()

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("agentId", agentID.String())
	ctx := middleware.WithOrganizationID(context.Background(), orgID.String())
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+agentID.String(), nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	AgentDetail(&stubAgentService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")}, logg).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type stubAgentService struct {
	created *agentsvc.CreateAgentRequest
	getErr  error
}

func (s *stubAgentService) Create(ctx context.Context, orgID uuid.UUID, req agentsvc.CreateAgentRequest) (*agentsvc.AgentDTO, error) {
	s.created = &req
	return &agentsvc.AgentDTO{ID: uuid.New(), OrganizationID: orgID, Name: req.Name, Category: req.Category}, nil
}

func (s *stubAgentService) Get(ctx context.Context, orgID, agentID uuid.UUID) (*agentsvc.AgentDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &agentsvc.AgentDTO{ID: agentID, OrganizationID: orgID, Category: enums.AgentCategoryResearch}, nil
}

func (s *stubAgentService) List(ctx context.Context, orgID uuid.UUID) ([]agentsvc.AgentDTO, error) {
	return []agentsvc.AgentDTO{}, nil
}

func (s *stubAgentService) Update(ctx context.Context, orgID, agentID uuid.UUID, req agentsvc.UpdateAgentRequest) (*agentsvc.AgentDTO, error) {
	return &agentsvc.AgentDTO{ID: agentID, OrganizationID: orgID}, nil
}

func (s *stubAgentService) Delete(ctx context.Context, orgID, agentID uuid.UUID) error {
	return nil
}

func (s *stubAgentService) ResolveActive(ctx context.Context, orgID, agentID uuid.UUID) (*models.Agent, error) {
	panic("unimplemented")
}
