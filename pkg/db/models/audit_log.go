package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records who did what inside an organization.
type AuditLog struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID       `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	Action         string          `gorm:"column:action;not null"`
	TargetType     string          `gorm:"column:target_type;not null"`
	TargetID       *uuid.UUID      `gorm:"column:target_id;type:uuid"`
	Metadata       json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
