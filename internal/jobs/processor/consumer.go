package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/audit"
	"github.com/coutlabs/cout-backend/internal/credits"
	"github.com/coutlabs/cout-backend/internal/inference"
	"github.com/coutlabs/cout-backend/internal/jobs"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/metrics"
	"github.com/coutlabs/cout-backend/pkg/outbox"
	"github.com/coutlabs/cout-backend/pkg/outbox/payloads"
)

const (
	jobsConsumerName = "jobs-worker"

	// failedJobMessage is the user-facing output stored on every failed job.
	// The short machine reason lands in the error column instead.
	failedJobMessage = "Job processing failed. Please try again."
)

var (
	errAlreadySettled      = errors.New("job already settled")
	errInsufficientCredits = errors.New("insufficient credits at completion")
)

type creditsService interface {
	TryDebit(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, amount int64) (bool, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, input credits.RecordUsageInput) error
	IncrementBucket(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, month string, creditsUsed int64) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type idempotencyManager interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type inferenceClient interface {
	Complete(ctx context.Context, prompt string, params inference.Params) (string, error)
}

type payloadDecoder interface {
	Decode(event enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

// Consumer drains the jobs subscription and drives each job from PENDING to a
// terminal status. Completion, the credit debit and usage accounting commit in
// one transaction so a crash never charges an org for a job it did not get.
type Consumer struct {
	jobs         *jobs.Repository
	db           *db.Client
	credits      creditsService
	audit        auditRecorder
	inference    inferenceClient
	decoders     payloadDecoder
	idempotency  idempotencyManager
	metrics      *metrics.WorkerMetrics
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	cfg          config.JobsConfig
	now          func() time.Time
}

// ConsumerParams carries the dependencies for NewConsumer.
type ConsumerParams struct {
	Jobs         *jobs.Repository
	DB           *db.Client
	Credits      creditsService
	Audit        auditRecorder
	Inference    inferenceClient
	Decoders     payloadDecoder
	Idempotency  idempotencyManager
	Metrics      *metrics.WorkerMetrics
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
	Config       config.JobsConfig
}

// NewConsumer validates the dependencies and builds a jobs consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Jobs == nil {
		return nil, errors.New("jobs repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Credits == nil {
		return nil, errors.New("credits service is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit recorder is required")
	}
	if params.Inference == nil {
		return nil, errors.New("inference client is required")
	}
	if params.Decoders == nil {
		return nil, errors.New("payload decoders are required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Metrics == nil {
		return nil, errors.New("worker metrics are required")
	}
	if params.Subscription == nil {
		return nil, errors.New("jobs subscription is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		jobs:         params.Jobs,
		db:           params.DB,
		credits:      params.Credits,
		audit:        params.Audit,
		inference:    params.Inference,
		decoders:     params.Decoders,
		idempotency:  params.Idempotency,
		metrics:      params.Metrics,
		subscription: params.Subscription,
		logg:         params.Logger,
		cfg:          params.Config,
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := c.logg.WithFields(ctx, fields)

	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	if eventType != "" && eventType != string(enums.EventJobSubmitted) {
		c.logg.Info(logCtx, "skipping event not handled by jobs consumer")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode payload envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(strings.TrimSpace(envelope.EventID))
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	fields["event_id"] = eventID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	decoded, err := c.decoders.Decode(enums.EventJobSubmitted, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode job payload", err)
		return processResult{ack: true}
	}
	payload, ok := decoded.(payloads.JobSubmittedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("%T is not a job submission", decoded))
		return processResult{ack: true}
	}
	if payload.JobID == uuid.Nil || payload.OrganizationID == uuid.Nil {
		c.logg.Error(logCtx, "job payload missing identifiers", fmt.Errorf("job_id or organization_id empty"))
		return processResult{ack: true}
	}

	fields["job_id"] = payload.JobID.String()
	fields["organization_id"] = payload.OrganizationID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	already, err := c.idempotency.CheckAndMarkProcessed(logCtx, jobsConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		// The key alone is not proof of completion: a crash between marking
		// and settling leaves the job stuck in PROCESSING. Ack only once the
		// row confirms a terminal state.
		c.logg.Info(logCtx, "event already marked, verifying job state")
		return c.handleUnclaimed(logCtx, eventID, payload.JobID)
	}

	claimed, err := c.jobs.MarkProcessing(logCtx, payload.JobID, c.now())
	if err != nil {
		c.logg.Error(logCtx, "failed to claim job", err)
		return c.retry(logCtx, eventID)
	}
	if !claimed {
		return c.handleUnclaimed(logCtx, eventID, payload.JobID)
	}

	output, duration, inferErr := c.runInference(logCtx, payload)
	if inferErr != nil {
		return c.settleFailure(logCtx, eventID, payload, failureReason(inferErr), duration)
	}

	return c.settleSuccess(logCtx, eventID, payload, output, duration)
}

func (c *Consumer) runInference(ctx context.Context, payload payloads.JobSubmittedEvent) (string, time.Duration, error) {
	timeout := c.cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	inferCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := inference.Params{
		SystemPrompt: payload.Agent.SystemPrompt,
		Temperature:  payload.Agent.Temperature,
		MaxTokens:    payload.Agent.MaxTokens,
		Model:        payload.Agent.Model,
		Category:     payload.Agent.Category,
	}

	start := c.now()
	output, err := c.inference.Complete(inferCtx, payload.Prompt, params)
	return output, c.now().Sub(start), err
}

func (c *Consumer) settleSuccess(ctx context.Context, eventID uuid.UUID, payload payloads.JobSubmittedEvent, output string, duration time.Duration) processResult {
	now := c.now()
	cost := payload.Cost
	if cost <= 0 {
		cost = int64(c.cfg.DefaultCost)
	}
	tokens := estimateTokens(output)

	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		completed, err := c.jobs.WithTx(tx).MarkCompleted(ctx, payload.JobID, output, &tokens, now)
		if err != nil {
			return err
		}
		if !completed {
			return errAlreadySettled
		}
		debited, err := c.credits.TryDebit(ctx, tx, payload.OrganizationID, cost)
		if err != nil {
			return err
		}
		if !debited {
			return errInsufficientCredits
		}
		if err := c.credits.RecordUsage(ctx, tx, credits.RecordUsageInput{
			JobID:          payload.JobID,
			OrganizationID: payload.OrganizationID,
			UserID:         payload.UserID,
			CreditsUsed:    cost,
			Action:         enums.UsageActionJobCompleted,
		}); err != nil {
			return err
		}
		return c.credits.IncrementBucket(ctx, tx, payload.OrganizationID, credits.MonthKey(now), cost)
	})
	switch {
	case errors.Is(err, errAlreadySettled):
		c.logg.Info(ctx, "job already settled by another delivery")
		return processResult{ack: true}
	case errors.Is(err, errInsufficientCredits):
		c.logg.Warn(ctx, "credits exhausted before completion")
		return c.settleFailure(ctx, eventID, payload, "insufficient_credits", duration)
	case err != nil:
		c.logg.Error(ctx, "completion transaction failed", err)
		return c.retry(ctx, eventID)
	}

	c.recordAudit(ctx, payload, audit.ActionJobCompleted, map[string]any{
		"credits_used": cost,
		"tokens_used":  tokens,
	})

	category := string(payload.Agent.Category)
	c.metrics.ObserveDuration(category, duration)
	c.metrics.IncSuccess(category)
	c.metrics.AddCreditsConsumed(category, cost)

	c.logg.Info(ctx, "job completed")
	return processResult{ack: true}
}

func (c *Consumer) settleFailure(ctx context.Context, eventID uuid.UUID, payload payloads.JobSubmittedEvent, reason string, duration time.Duration) processResult {
	failed, err := c.jobs.MarkFailed(ctx, payload.JobID, failedJobMessage, reason, c.now())
	if err != nil {
		c.logg.Error(ctx, "failed to mark job failed", err)
		return c.retry(ctx, eventID)
	}
	if !failed {
		c.logg.Info(ctx, "job already settled by another delivery")
		return processResult{ack: true}
	}

	c.recordAudit(ctx, payload, audit.ActionJobFailed, map[string]any{
		"reason": reason,
	})

	category := string(payload.Agent.Category)
	c.metrics.ObserveDuration(category, duration)
	c.metrics.IncFailure(category)

	c.logg.Warn(ctx, "job failed: "+reason)
	return processResult{ack: true}
}

// retry releases the idempotency key so a redelivery gets a clean attempt.
func (c *Consumer) retry(ctx context.Context, eventID uuid.UUID) processResult {
	if err := c.idempotency.Delete(ctx, jobsConsumerName, eventID); err != nil {
		c.logg.Error(ctx, "failed to release idempotency key", err)
	}
	return processResult{nack: true}
}

func (c *Consumer) handleUnclaimed(ctx context.Context, eventID, jobID uuid.UUID) processResult {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(ctx, "job row not found")
			return processResult{ack: true}
		}
		c.logg.Error(ctx, "failed to load unclaimed job", err)
		return c.retry(ctx, eventID)
	}
	if job.Status.IsTerminal() {
		c.logg.Info(ctx, "job already in terminal status")
		return processResult{ack: true}
	}
	// Still PROCESSING from an attempt that never settled. Release the key
	// and let a redelivery pick it up once visibility expires.
	c.logg.Warn(ctx, "job claimed by an unfinished attempt")
	return c.retry(ctx, eventID)
}

func (c *Consumer) recordAudit(ctx context.Context, payload payloads.JobSubmittedEvent, action string, metadata map[string]any) {
	entry := audit.Entry{
		OrganizationID: payload.OrganizationID,
		UserID:         &payload.UserID,
		Action:         action,
		TargetType:     audit.TargetJob,
		TargetID:       &payload.JobID,
		Metadata:       metadata,
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		c.logg.Error(ctx, "failed to record audit entry", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, inference.ErrTimeout):
		return "timeout"
	case errors.Is(err, inference.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, inference.ErrInvalidConfig):
		return "invalid_config"
	default:
		return "upstream_error"
	}
}

// estimateTokens approximates usage at four characters per token. The mock
// provider reports nothing, so completions still get a tokens_used value.
func estimateTokens(output string) int64 {
	tokens := int64(len(output) / 4)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
