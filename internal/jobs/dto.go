package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// JobDTO is the transport shape of a job.
type JobDTO struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	AgentID        uuid.UUID       `json:"agent_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Prompt         string          `json:"prompt"`
	Status         enums.JobStatus `json:"status"`
	Output         *string         `json:"output,omitempty"`
	Error          *string         `json:"error,omitempty"`
	Cost           int64           `json:"cost"`
	TokensUsed     *int64          `json:"tokens_used,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SubmitJobRequest is the payload accepted by the submission endpoint.
type SubmitJobRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
	Prompt  string    `json:"prompt" validate:"required"`
}

// JobListResult is one page of jobs plus the cursor for the next page.
type JobListResult struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor *string  `json:"next_cursor,omitempty"`
}

// FromModel converts the persistence model into its transport shape.
func FromModel(j *models.Job) *JobDTO {
	if j == nil {
		return nil
	}
	return &JobDTO{
		ID:             j.ID,
		OrganizationID: j.OrganizationID,
		AgentID:        j.AgentID,
		UserID:         j.UserID,
		Prompt:         j.Prompt,
		Status:         j.Status,
		Output:         j.Output,
		Error:          j.Error,
		Cost:           j.Cost,
		TokensUsed:     j.TokensUsed,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}
