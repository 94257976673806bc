package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageBucket aggregates per-organization usage by calendar month ("2026-08").
type UsageBucket struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID  uuid.UUID `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:usage_buckets_org_month_key"`
	Month           string    `gorm:"column:month;not null;uniqueIndex:usage_buckets_org_month_key"`
	JobsCompleted   int64     `gorm:"column:jobs_completed;not null;default:0"`
	CreditsConsumed int64     `gorm:"column:credits_consumed;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
