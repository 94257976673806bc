package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/outbox"
	"github.com/coutlabs/cout-backend/pkg/outbox/registry"
)

// The relay drains outbox_events rows written by the API (job submissions,
// credit replenishments) and hands them to Pub/Sub. Everything a worker ever
// consumes went through this loop first, so an event may not be lost between
// the fetch and the mark.
const (
	fallbackBatchSize   = 50
	fallbackPollEvery   = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	backoffCeiling      = 10 * time.Second
	jitterSpan          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type messageBus interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher abstracts the Pub/Sub publisher so the relay loop can be
// exercised without a broker.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishHandle
}

type publishHandle interface {
	Get(context.Context) (string, error)
}

type publisherForTopic func(topic string) topicPublisher

type RelayParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           txRunner
	PubSub       messageBus
	Events       eventStore
	Registry     eventResolver
	DeadLetters  deadLetterStore
	NewPublisher publisherForTopic
}

type Relay struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           txRunner
	events       eventStore
	bus          messageBus
	registry     eventResolver
	deadLetters  deadLetterStore
	newPublisher publisherForTopic
	batchSize    int
	maxAttempts  int
	pollEvery    time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	newPublisher := params.NewPublisher
	if newPublisher == nil {
		newPublisher = func(topic string) topicPublisher {
			return wrapBusPublisher(params.PubSub.Publisher(topic))
		}
	}

	r := &Relay{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		events:       params.Events,
		bus:          params.PubSub,
		registry:     params.Registry,
		deadLetters:  params.DeadLetters,
		newPublisher: newPublisher,
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollEvery:    time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = fallbackBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = fallbackMaxAttempts
	}
	if r.pollEvery <= 0 {
		r.pollEvery = fallbackPollEvery
	}
	return r, nil
}

func (r *Relay) ensureReadiness(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		r.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.bus.Ping(ctx); err != nil {
		r.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until the context is canceled. An empty batch sleeps for the
// poll interval; a batch error backs off exponentially up to the ceiling.
func (r *Relay) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := r.pollEvery
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "event relay stopping")
			return ctx.Err()
		default:
		}

		drained, err := r.drainBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "event relay batch error", err)
			backoff = growBackoff(backoff, r.pollEvery)
			if err := r.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
		case drained:
			backoff = r.pollEvery
		default:
			backoff = r.pollEvery
			if err := r.sleep(ctx, withJitter(r.pollEvery)); err != nil {
				return err
			}
		}
	}
}

// drainBatch claims a page of unpublished events under row locks and relays
// each one. It reports whether any rows were claimed so Run can skip the
// idle sleep while there is a backlog.
func (r *Relay) drainBatch(ctx context.Context) (bool, error) {
	drained := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		drained = true
		for _, event := range events {
			if err := r.relayOne(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return drained, err
}

// relayOne publishes a single event and records the outcome in the same
// transaction that claimed it. Publish failures are absorbed here so the
// rest of the batch still makes progress; only bookkeeping errors abort.
func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.quarantine(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, "", nil)
	}

	topic := resolved.Descriptor.Topic
	fields := r.logFields(event, resolved.Envelope, topic)

	if err := r.dispatch(ctx, event, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return r.quarantine(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, topic, fields)
		}

		nextAttempt := event.AttemptCount + 1
		fields["attempt_count"] = nextAttempt
		if nextAttempt >= r.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			terminalErr := fmt.Errorf("max publish attempts reached: %w", err)
			return r.quarantine(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, topic, fields)
		}

		logCtx := r.logg.WithFields(ctx, fields)
		logCtx = r.logg.WithField(logCtx, "error", err.Error())
		r.logg.Warn(logCtx, "event publish failed, will retry")
		if markErr := r.events.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	}

	if markErr := r.events.MarkPublishedTx(tx, event.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, markErr)
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "event relayed")
	return nil
}

// quarantine writes the event to the DLQ and pins its attempt count so the
// fetch query never returns it again. Job submissions that land here need an
// operator; the job row stays PENDING until the event is replayed.
func (r *Relay) quarantine(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = r.logFields(event, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	logCtx := r.logg.WithFields(ctx, fields)
	logCtx = r.logg.WithField(logCtx, "error", cause.Error())
	r.logg.Warn(logCtx, "event moved to dead letter queue")

	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  errorMessage(cause),
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

// dispatch sends the stored payload to the event's topic. The attributes
// mirror the envelope so consumers can route and dedupe without decoding
// the body.
func (r *Relay) dispatch(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.newPublisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	handle := pub.Publish(publishCtx, msg)
	if handle == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := handle.Get(publishCtx)
	return err
}

func (r *Relay) logFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     r.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func growBackoff(current, base time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < backoffCeiling {
		return next
	}
	return backoffCeiling
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterSpan)))
}

func wrapBusPublisher(p *gcppubsub.Publisher) topicPublisher {
	if p == nil {
		return nil
	}
	return &busPublisher{p: p}
}

type busPublisher struct {
	p *gcppubsub.Publisher
}

func (b *busPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishHandle {
	if b == nil || b.p == nil {
		return nil
	}
	return &busHandle{res: b.p.Publish(ctx, msg)}
}

type busHandle struct {
	res *gcppubsub.PublishResult
}

func (h *busHandle) Get(ctx context.Context) (string, error) {
	if h == nil || h.res == nil {
		return "", errors.New("publish result is nil")
	}
	return h.res.Get(ctx)
}
