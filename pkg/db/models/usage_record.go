package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// UsageRecord is the append-only ledger line written when a job completes.
// The unique index on job_id makes redelivered completions a no-op.
type UsageRecord struct {
	ID             uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID         `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	JobID          uuid.UUID         `gorm:"column:job_id;type:uuid;not null;uniqueIndex:usage_records_job_id_key"`
	Action         enums.UsageAction `gorm:"column:action;type:usage_action;not null"`
	CreditsUsed    int64             `gorm:"column:credits_used;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}
