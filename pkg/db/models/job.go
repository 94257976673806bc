package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Job is a single asynchronous prompt execution against an agent.
type Job struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID       `gorm:"column:organization_id;type:uuid;not null;index:idx_jobs_org_created"`
	AgentID        uuid.UUID       `gorm:"column:agent_id;type:uuid;not null;index"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Prompt         string          `gorm:"column:prompt;type:text;not null"`
	Status         enums.JobStatus `gorm:"column:status;type:job_status;not null;default:'PENDING'"`
	Output         *string         `gorm:"column:output;type:text"`
	Error          *string         `gorm:"column:error;type:text"`
	Cost           int64           `gorm:"column:cost;not null;default:1"`
	TokensUsed     *int64          `gorm:"column:tokens_used"`
	StartedAt      *time.Time      `gorm:"column:started_at"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_jobs_org_created"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
