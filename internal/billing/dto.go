package billing

import (
	"github.com/coutlabs/cout-backend/pkg/db/models"
)

// PlanDTO is the public shape of a billing plan.
type PlanDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Tier           string   `json:"tier"`
	Interval       string   `json:"interval"`
	Price          string   `json:"price"`
	Currency       string   `json:"currency"`
	CreditsPerTerm int64    `json:"credits_per_term"`
	Features       []string `json:"features"`
	IsDefault      bool     `json:"is_default"`
}

// CheckoutSessionDTO carries the hosted checkout redirect back to the caller.
type CheckoutSessionDTO struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// FromPlanModel maps a billing plan row to its DTO.
func FromPlanModel(plan *models.BillingPlan) PlanDTO {
	features := make([]string, 0, len(plan.Features))
	features = append(features, plan.Features...)
	return PlanDTO{
		ID:             plan.ID,
		Name:           plan.Name,
		Tier:           string(plan.Tier),
		Interval:       string(plan.Interval),
		Price:          plan.PriceAmount.StringFixed(2),
		Currency:       plan.CurrencyCode,
		Features:       features,
		CreditsPerTerm: plan.CreditsPerTerm,
		IsDefault:      plan.IsDefault,
	}
}
