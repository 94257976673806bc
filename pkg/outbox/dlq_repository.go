package outbox

import (
	"context"
	"errors"

	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Error messages from Pub/Sub can carry full gRPC status dumps. Cap what we
// persist so a single poisoned event cannot bloat the table.
const deadLetterErrorCap = 1024

// DeadLetterRepository stores events the relay gave up on. Rows keep the
// original payload so an operator can replay a quarantined job submission
// after the underlying fault is fixed.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		capped := capErrorMessage(*entry.ErrorMessage)
		entry.ErrorMessage = &capped
	}
	return tx.Create(&entry).Error
}

// FindByEventID looks up a quarantined event, nil when none exists.
func (r *DeadLetterRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var row models.OutboxDLQ
	switch err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

// List returns the most recent quarantined events for operator review.
func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func capErrorMessage(message string) string {
	if len(message) <= deadLetterErrorCap {
		return message
	}
	return message[:deadLetterErrorCap]
}
