package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/pagination"
)

func setupJobsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	jobs := `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  prompt TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  output TEXT,
  error TEXT,
  cost INTEGER NOT NULL DEFAULT 1,
  tokens_used INTEGER,
  started_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(jobs).Error)
	return db
}

func seedJob(t *testing.T, repo *Repository, orgID uuid.UUID, status enums.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		OrganizationID: orgID,
		AgentID:        uuid.New(),
		UserID:         uuid.New(),
		Prompt:         "do the thing",
		Status:         status,
		Cost:           1,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestMarkProcessingTransition(t *testing.T) {
	repo := NewRepository(setupJobsTestDB(t))
	ctx := context.Background()
	job := seedJob(t, repo, uuid.New(), enums.JobStatusPending)

	moved, err := repo.MarkProcessing(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, moved)

	reloaded, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusProcessing, reloaded.Status)
	assert.NotNil(t, reloaded.StartedAt)

	moved, err = repo.MarkProcessing(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, moved, "second claim must be a no-op")
}

func TestMarkCompletedRequiresProcessing(t *testing.T) {
	repo := NewRepository(setupJobsTestDB(t))
	ctx := context.Background()
	job := seedJob(t, repo, uuid.New(), enums.JobStatusPending)

	tokens := int64(42)
	moved, err := repo.MarkCompleted(ctx, job.ID, "output", &tokens, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, moved, "PENDING job cannot complete directly")

	_, err = repo.MarkProcessing(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)

	moved, err = repo.MarkCompleted(ctx, job.ID, "output", &tokens, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, moved)

	reloaded, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.Output)
	assert.Equal(t, "output", *reloaded.Output)
	require.NotNil(t, reloaded.TokensUsed)
	assert.Equal(t, int64(42), *reloaded.TokensUsed)
	assert.NotNil(t, reloaded.CompletedAt)

	moved, err = repo.MarkCompleted(ctx, job.ID, "other output", nil, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, moved, "completed job must stay completed")
}

func TestMarkFailedFromLiveStates(t *testing.T) {
	repo := NewRepository(setupJobsTestDB(t))
	ctx := context.Background()

	pending := seedJob(t, repo, uuid.New(), enums.JobStatusPending)
	moved, err := repo.MarkFailed(ctx, pending.ID, "Job processing failed. Please try again.", "upstream_error", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, moved)

	processing := seedJob(t, repo, uuid.New(), enums.JobStatusProcessing)
	moved, err = repo.MarkFailed(ctx, processing.ID, "Job processing failed. Please try again.", "upstream_error", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, moved)

	reloaded, err := repo.FindByID(ctx, processing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.Output)
	assert.Equal(t, "Job processing failed. Please try again.", *reloaded.Output)
	require.NotNil(t, reloaded.Error)
	assert.Equal(t, "upstream_error", *reloaded.Error)

	moved, err = repo.MarkFailed(ctx, processing.ID, "again", "again", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, moved, "terminal job must not fail twice")
}

func TestListJobsCursorPagination(t *testing.T) {
	repo := NewRepository(setupJobsTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := &models.Job{
			ID:             uuid.New(),
			OrganizationID: orgID,
			AgentID:        uuid.New(),
			UserID:         uuid.New(),
			Prompt:         "paged prompt",
			Status:         enums.JobStatusPending,
			Cost:           1,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.db.Create(job).Error)
	}
	seedJob(t, repo, uuid.New(), enums.JobStatusPending)

	first, cursor, err := repo.List(ctx, listJobsParams{OrgID: orgID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt), "newest first")

	second, cursor, err := repo.List(ctx, listJobsParams{OrgID: orgID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.NotNil(t, cursor)
	assert.True(t, first[1].CreatedAt.After(second[0].CreatedAt))

	third, cursor, err := repo.List(ctx, listJobsParams{OrgID: orgID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Nil(t, cursor)
}

func TestListJobsDefaultLimit(t *testing.T) {
	repo := NewRepository(setupJobsTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()
	seedJob(t, repo, orgID, enums.JobStatusPending)

	jobs, cursor, err := repo.List(ctx, listJobsParams{OrgID: orgID, Limit: 0})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Nil(t, cursor)
	assert.Equal(t, pagination.DefaultLimit, pagination.NormalizeLimit(0))
}
