package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/coutlabs/cout-backend/pkg/db/types"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Agent is a configured AI assistant owned by an organization.
type Agent struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID           `gorm:"column:organization_id;type:uuid;not null;index"`
	Name           string              `gorm:"column:name;not null"`
	Description    *string             `gorm:"column:description"`
	Category       enums.AgentCategory `gorm:"column:category;type:agent_category;not null"`
	Config         dbtypes.AgentConfig `gorm:"column:config;type:jsonb;not null"`
	IsActive       bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
