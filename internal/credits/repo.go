package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Repository manages subscription balances and usage accounting rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a credits repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateSubscription inserts the organization's subscription row.
func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// FindByOrganization loads the subscription for the given organization.
func (r *Repository) FindByOrganization(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindByStripeSubscriptionID loads a subscription by its Stripe identifier.
func (r *Repository) FindByStripeSubscriptionID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveSubscription persists the full subscription row, used by billing sync.
func (r *Repository) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// TryDebit conditionally decrements the balance. It reports false when the
// organization does not hold at least amount credits; no row is changed then.
func (r *Repository) TryDebit(ctx context.Context, orgID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("organization_id = ? AND credits >= ?", orgID, amount).
		Update("credits", gorm.Expr("credits - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetCredits overwrites the balance and rolls the billing period.
func (r *Repository) ResetCredits(ctx context.Context, orgID uuid.UUID, credits int64, periodEnd *time.Time) error {
	updates := map[string]any{"credits": credits}
	if periodEnd != nil {
		updates["current_period_end"] = *periodEnd
	}
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("organization_id = ?", orgID).
		Updates(updates).Error
}

// UpdateStatus syncs the subscription lifecycle state.
func (r *Repository) UpdateStatus(ctx context.Context, orgID uuid.UUID, status enums.SubscriptionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("organization_id = ?", orgID).
		Update("status", status).Error
}

// CreateUsageRecord appends a usage ledger line. The unique index on job_id
// turns a duplicate append into a unique violation.
func (r *Repository) CreateUsageRecord(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// IncrementBucket lazily upserts the (organization, month) aggregate.
func (r *Repository) IncrementBucket(ctx context.Context, orgID uuid.UUID, month string, credits int64) error {
	bucket := models.UsageBucket{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		Month:           month,
		JobsCompleted:   1,
		CreditsConsumed: credits,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "month"}},
			DoUpdates: clause.Assignments(map[string]any{
				"jobs_completed":   gorm.Expr("usage_buckets.jobs_completed + 1"),
				"credits_consumed": gorm.Expr("usage_buckets.credits_consumed + ?", credits),
				"updated_at":       time.Now(),
			}),
		}).
		Create(&bucket).Error
}

// ListUsageRecords returns the most recent ledger lines for the organization.
func (r *Repository) ListUsageRecords(ctx context.Context, orgID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.UsageRecord
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListBuckets returns the monthly aggregates for the organization, newest first.
func (r *Repository) ListBuckets(ctx context.Context, orgID uuid.UUID, limit int) ([]models.UsageBucket, error) {
	if limit <= 0 {
		limit = 12
	}
	var buckets []models.UsageBucket
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("month DESC").
		Limit(limit).
		Find(&buckets).Error; err != nil {
		return nil, err
	}
	return buckets, nil
}
