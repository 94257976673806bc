package billing

import (
	"context"

	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// ListPlansQuery configures billing plan list queries.
type ListPlansQuery struct {
	Status    *enums.PlanStatus
	IsDefault *bool
}

// Repository handles billing plan persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePlan(ctx context.Context, plan *models.BillingPlan) error
	UpdatePlan(ctx context.Context, plan *models.BillingPlan) error
	ListPlans(ctx context.Context, query ListPlansQuery) ([]models.BillingPlan, error)
	FindPlanByID(ctx context.Context, id string) (*models.BillingPlan, error)
	FindPlanByStripePriceID(ctx context.Context, priceID string) (*models.BillingPlan, error)
	FindDefaultPlan(ctx context.Context) (*models.BillingPlan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.BillingPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) UpdatePlan(ctx context.Context, plan *models.BillingPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) ListPlans(ctx context.Context, query ListPlansQuery) ([]models.BillingPlan, error) {
	q := r.db.WithContext(ctx).Model(&models.BillingPlan{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.IsDefault != nil {
		q = q.Where("is_default = ?", *query.IsDefault)
	}
	var plans []models.BillingPlan
	if err := q.Order("price_amount ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindPlanByStripePriceID(ctx context.Context, priceID string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindDefaultPlan(ctx context.Context) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}
