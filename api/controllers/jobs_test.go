package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/api/middleware"
	jobsvc "github.com/coutlabs/cout-backend/internal/jobs"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/pagination"
)

func TestJobSubmit(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	orgID := uuid.New()
	userID := uuid.New()
	agentID := uuid.New()

	authedCtx := func() context.Context {
		ctx := middleware.WithOrganizationID(context.Background(), orgID.String())
		ctx = middleware.WithUserID(ctx, userID.String())
		ctx = middleware.WithRole(ctx, string(enums.UserRoleUser))
		return ctx
	}

	t.Run("missing organization", func(t *testing.T) {
		body := strings.NewReader(`{"agent_id":"` + agentID.String() + `","prompt":"hello"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
		req = req.WithContext(middleware.WithUserID(context.Background(), userID.String()))
		rec := httptest.NewRecorder()
		JobSubmit(&stubJobService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 when org missing, got %d", rec.Code)
		}
	})

	t.Run("missing prompt", func(t *testing.T) {
		body := strings.NewReader(`{"agent_id":"` + agentID.String() + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
		req = req.WithContext(authedCtx())
		rec := httptest.NewRecorder()
		JobSubmit(&stubJobService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing prompt, got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubJobService{}
		body := strings.NewReader(`{"agent_id":"` + agentID.String() + `","prompt":"summarize this"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
		req = req.WithContext(authedCtx())
		rec := httptest.NewRecorder()
		JobSubmit(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202 on success, got %d (%s)", rec.Code, rec.Body.String())
		}
		if stub.submitted == nil {
			t.Fatal("expected Submit to be invoked")
		}
		if stub.submitted.OrganizationID != orgID || stub.submitted.AgentID != agentID {
			t.Fatalf("unexpected submit input: %+v", stub.submitted)
		}
		var payload struct {
			Data struct {
				Status enums.JobStatus `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if payload.Data.Status != enums.JobStatusPending {
			t.Fatalf("unexpected response payload: %s", rec.Body.String())
		}
	})
}

func TestJobListParsesPagination(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	orgID := uuid.New()

	stub := &stubJobService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=5&cursor=abc", nil)
	req = req.WithContext(middleware.WithOrganizationID(context.Background(), orgID.String()))
	rec := httptest.NewRecorder()
	JobList(stub, logg).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if stub.listParams.Limit != 5 || stub.listParams.Cursor != "abc" {
		t.Fatalf("unexpected pagination params: %+v", stub.listParams)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=1000", nil)
	bad = bad.WithContext(middleware.WithOrganizationID(context.Background(), orgID.String()))
	rec = httptest.NewRecorder()
	JobList(stub, logg).ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range limit, got %d", rec.Code)
	}
}

type stubJobService struct {
	submitted  *jobsvc.SubmitJobInput
	listParams pagination.Params
}

func (s *stubJobService) Submit(ctx context.Context, input jobsvc.SubmitJobInput) (*jobsvc.JobDTO, error) {
	s.submitted = &input
	return &jobsvc.JobDTO{
		ID:             uuid.New(),
		OrganizationID: input.OrganizationID,
		AgentID:        input.AgentID,
		UserID:         input.UserID,
		Prompt:         input.Prompt,
		Status:         enums.JobStatusPending,
	}, nil
}

func (s *stubJobService) Get(ctx context.Context, orgID, jobID uuid.UUID) (*jobsvc.JobDTO, error) {
	return &jobsvc.JobDTO{ID: jobID, OrganizationID: orgID, Status: enums.JobStatusCompleted}, nil
}

func (s *stubJobService) List(ctx context.Context, orgID uuid.UUID, params pagination.Params) (*jobsvc.JobListResult, error) {
	s.listParams = params
	return &jobsvc.JobListResult{Jobs: []jobsvc.JobDTO{}}, nil
}
