package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Subscription carries the billing state and credit balance for an organization.
// Exactly one row exists per organization.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID       uuid.UUID                `gorm:"column:organization_id;type:uuid;not null;uniqueIndex"`
	PlanID               *string                  `gorm:"column:plan_id"`
	Tier                 enums.PlanTier           `gorm:"column:tier;type:plan_tier;not null;default:'FREE'"`
	Credits              int64                    `gorm:"column:credits;not null;default:0"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;uniqueIndex"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
