package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/db/models"
)

// Action names recorded in the audit trail.
const (
	ActionJobCreated      = "JOB_CREATED"
	ActionJobCompleted    = "JOB_COMPLETED"
	ActionJobFailed       = "JOB_FAILED"
	ActionCreditsReset    = "CREDITS_RESET"
	ActionSubscriptionSet = "SUBSCRIPTION_UPDATED"
	ActionMemberInvited   = "MEMBER_INVITED"
	ActionMemberUpdated   = "MEMBER_UPDATED"
	ActionUserLogin       = "USER_LOGIN"
)

// Target types referenced by audit entries.
const (
	TargetJob          = "job"
	TargetSubscription = "subscription"
	TargetUser         = "user"
)

// Repository persists audit log entries.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an audit repo bound to the provided GORM DB.
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

// Entry captures one auditable action.
type Entry struct {
	OrganizationID uuid.UUID
	UserID         *uuid.UUID
	Action         string
	TargetType     string
	TargetID       *uuid.UUID
	Metadata       any
}

// Record appends an audit entry. Metadata is marshaled to JSON when present.
func (r *Repository) Record(ctx context.Context, entry Entry) error {
	var metadata json.RawMessage
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = encoded
	}

	log := &models.AuditLog{
		ID:             uuid.New(),
		OrganizationID: entry.OrganizationID,
		UserID:         entry.UserID,
		Action:         entry.Action,
		TargetType:     entry.TargetType,
		TargetID:       entry.TargetID,
		Metadata:       metadata,
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByOrganization returns the most recent entries for an organization.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
