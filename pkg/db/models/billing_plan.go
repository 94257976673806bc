package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

// BillingPlan captures the local metadata for a subscription plan.
type BillingPlan struct {
	ID             string                `gorm:"column:id;primaryKey"`
	Name           string                `gorm:"column:name;not null"`
	Status         enums.PlanStatus      `gorm:"column:status;type:plan_status;not null"`
	Tier           enums.PlanTier        `gorm:"column:tier;type:plan_tier;not null"`
	StripePriceID  string                `gorm:"column:stripe_price_id;not null;uniqueIndex"`
	IsDefault      bool                  `gorm:"column:is_default;not null;default:false"`
	CreditsPerTerm int64                 `gorm:"column:credits_per_term;not null"`
	Interval       enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	PriceAmount    decimal.Decimal       `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode   string                `gorm:"column:currency_code;not null"`
	Features       pq.StringArray        `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	UI             json.RawMessage       `gorm:"column:ui;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
