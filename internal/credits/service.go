package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Service defines credit balance and usage accounting operations.
type Service interface {
	Balance(ctx context.Context, orgID uuid.UUID) (int64, error)
	Subscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
	TryDebit(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, amount int64) (bool, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, input RecordUsageInput) error
	IncrementBucket(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, month string, credits int64) error
	Usage(ctx context.Context, orgID uuid.UUID) (*UsageSummary, error)
}

type service struct {
	repo *Repository
}

// RecordUsageInput captures the immutable data a usage record requires.
type RecordUsageInput struct {
	JobID          uuid.UUID
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	CreditsUsed    int64
	Action         enums.UsageAction
}

// UsageSummary bundles the balance with recent consumption for the dashboard.
type UsageSummary struct {
	Credits      int64            `json:"credits"`
	Tier         enums.PlanTier   `json:"tier"`
	Buckets      []UsageBucketDTO `json:"buckets"`
	RecentEvents []UsageRecordDTO `json:"recent_events"`
}

// UsageBucketDTO is the API shape of a monthly aggregate.
type UsageBucketDTO struct {
	Month           string `json:"month"`
	JobsCompleted   int64  `json:"jobs_completed"`
	CreditsConsumed int64  `json:"credits_consumed"`
}

// UsageRecordDTO is the API shape of a usage ledger line.
type UsageRecordDTO struct {
	JobID       uuid.UUID         `json:"job_id"`
	Action      enums.UsageAction `json:"action"`
	CreditsUsed int64             `json:"credits_used"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewService wires a credits service with the provided repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Balance(ctx context.Context, orgID uuid.UUID) (int64, error) {
	if orgID == uuid.Nil {
		return 0, fmt.Errorf("organization id is required")
	}
	sub, err := s.repo.FindByOrganization(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return sub.Credits, nil
}

func (s *service) Subscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization id is required")
	}
	return s.repo.FindByOrganization(ctx, orgID)
}

func (s *service) TryDebit(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, amount int64) (bool, error) {
	if orgID == uuid.Nil {
		return false, fmt.Errorf("organization id is required")
	}
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive")
	}
	return s.repo.WithTx(tx).TryDebit(ctx, orgID, amount)
}

func (s *service) RecordUsage(ctx context.Context, tx *gorm.DB, input RecordUsageInput) error {
	if input.JobID == uuid.Nil {
		return fmt.Errorf("job id is required")
	}
	if input.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization id is required")
	}
	if !input.Action.IsValid() {
		return fmt.Errorf("invalid usage action %q", input.Action)
	}
	record := &models.UsageRecord{
		JobID:          input.JobID,
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		Action:         input.Action,
		CreditsUsed:    input.CreditsUsed,
	}
	return s.repo.WithTx(tx).CreateUsageRecord(ctx, record)
}

func (s *service) IncrementBucket(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, month string, credits int64) error {
	if orgID == uuid.Nil {
		return fmt.Errorf("organization id is required")
	}
	if month == "" {
		return fmt.Errorf("month is required")
	}
	return s.repo.WithTx(tx).IncrementBucket(ctx, orgID, month, credits)
}

func (s *service) Usage(ctx context.Context, orgID uuid.UUID) (*UsageSummary, error) {
	sub, err := s.repo.FindByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	buckets, err := s.repo.ListBuckets(ctx, orgID, 12)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListUsageRecords(ctx, orgID, 50)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		Credits:      sub.Credits,
		Tier:         sub.Tier,
		Buckets:      make([]UsageBucketDTO, 0, len(buckets)),
		RecentEvents: make([]UsageRecordDTO, 0, len(records)),
	}
	for _, bucket := range buckets {
		summary.Buckets = append(summary.Buckets, UsageBucketDTO{
			Month:           bucket.Month,
			JobsCompleted:   bucket.JobsCompleted,
			CreditsConsumed: bucket.CreditsConsumed,
		})
	}
	for _, record := range records {
		summary.RecentEvents = append(summary.RecentEvents, UsageRecordDTO{
			JobID:       record.JobID,
			Action:      record.Action,
			CreditsUsed: record.CreditsUsed,
			CreatedAt:   record.CreatedAt,
		})
	}
	return summary, nil
}

// MonthKey formats the usage bucket key for the given instant.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
