package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/pagination"
)

// Repository persists jobs and drives the status state machine.
// Every transition is a conditional update guarded by the current status,
// so redelivered messages collapse into zero-row no-ops.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a jobs repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new PENDING job.
func (r *Repository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// FindByID loads a job without org scoping. The worker uses this to
// distinguish terminal jobs from missing ones.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindForOrg loads a job scoped to the owning organization.
func (r *Repository) FindForOrg(ctx context.Context, orgID, jobID uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", jobID, orgID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type listJobsParams struct {
	OrgID  uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// List returns one page of the organization's jobs, newest first.
func (r *Repository) List(ctx context.Context, params listJobsParams) ([]models.Job, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Job{}).Where("organization_id = ?", params.OrgID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var jobs []models.Job
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, nil, err
	}

	if len(jobs) > normalized {
		next := jobs[normalized]
		jobs = jobs[:normalized]
		return jobs, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return jobs, nil, nil
}

// MarkProcessing transitions PENDING to PROCESSING and stamps started_at.
// It reports false when the job was not in PENDING.
func (r *Repository) MarkProcessing(ctx context.Context, jobID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, enums.JobStatusPending).
		Updates(map[string]any{
			"status":     enums.JobStatusProcessing,
			"started_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCompleted transitions PROCESSING to COMPLETED with the output.
// It reports false when the job was not in PROCESSING.
func (r *Repository) MarkCompleted(ctx context.Context, jobID uuid.UUID, output string, tokensUsed *int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, enums.JobStatusProcessing).
		Updates(map[string]any{
			"status":       enums.JobStatusCompleted,
			"output":       output,
			"tokens_used":  tokensUsed,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed transitions a live job to FAILED. The user-facing output
// carries the generic failure message; reason stores a short internal code.
// It reports false when the job was already terminal.
func (r *Repository) MarkFailed(ctx context.Context, jobID uuid.UUID, output, reason string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID, []enums.JobStatus{enums.JobStatusPending, enums.JobStatusProcessing}).
		Updates(map[string]any{
			"status":       enums.JobStatusFailed,
			"output":       output,
			"error":        reason,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
