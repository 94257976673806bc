package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/audit"
	"github.com/coutlabs/cout-backend/internal/billing"
	"github.com/coutlabs/cout-backend/internal/credits"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/outbox"
	"github.com/coutlabs/cout-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups the dependencies for the webhook service.
type ServiceParams struct {
	Subscriptions     *credits.Repository
	Billing           billing.Repository
	Audit             *audit.Repository
	Outbox            outboxEmitter
	TransactionRunner txRunner
}

// Service applies Stripe subscription lifecycle events to local state.
// Credit grants only ever happen here: invoice payment is the single
// entry point that resets an organization's balance.
type Service struct {
	subscriptions *credits.Repository
	billing       billing.Repository
	audit         *audit.Repository
	outbox        outboxEmitter
	txRunner      txRunner
}

// NewService builds a Stripe webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.Billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		subscriptions: params.Subscriptions,
		billing:       params.Billing,
		audit:         params.Audit,
		outbox:        params.Outbox,
		txRunner:      params.TransactionRunner,
	}, nil
}

// HandleEvent routes a verified Stripe event to its handler. Unhandled
// event types are acknowledged without effect.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, &stripeSub, event.Type == stripe.EventTypeCustomerSubscriptionDeleted)
	case stripe.EventTypeInvoicePaid:
		return s.applyInvoicePaid(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.applyInvoiceFailed(ctx, event)
	default:
		return nil
	}
}

// applyInvoicePaid resets the organization's balance to the plan grant and
// rolls the billing period forward.
func (s *Service) applyInvoicePaid(ctx context.Context, event *stripe.Event) error {
	subID := invoiceSubscriptionID(event)
	if subID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing from invoice")
	}

	stored, err := s.subscriptions.FindByStripeSubscriptionID(ctx, subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not known yet")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	plan, err := s.resolvePlan(ctx, stored, event)
	if err != nil {
		return err
	}

	periodEnd := parseUnixValue(event.GetObjectValue("period_end"))

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subscriptions.WithTx(tx)
		if err := repo.ResetCredits(ctx, stored.OrganizationID, plan.CreditsPerTerm, periodEnd); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset credits")
		}
		if err := repo.UpdateStatus(ctx, stored.OrganizationID, enums.SubscriptionStatusActive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsReplenished,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   stored.ID,
			Data: payloads.CreditsReplenishedEvent{
				OrganizationID: stored.OrganizationID,
				SubscriptionID: stored.ID,
				CreditsGranted: plan.CreditsPerTerm,
				PlanID:         plan.ID,
			},
			Version: 1,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue replenishment event")
		}
		return s.audit.WithTx(tx).Record(ctx, audit.Entry{
			OrganizationID: stored.OrganizationID,
			Action:         audit.ActionCreditsReset,
			TargetType:     audit.TargetSubscription,
			TargetID:       &stored.ID,
			Metadata: map[string]any{
				"plan_id":         plan.ID,
				"credits_granted": plan.CreditsPerTerm,
			},
		})
	})
}

func (s *Service) applyInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	subID := invoiceSubscriptionID(event)
	if subID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing from invoice")
	}

	stored, err := s.subscriptions.FindByStripeSubscriptionID(ctx, subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not known yet")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subscriptions.WithTx(tx)
		if err := repo.UpdateStatus(ctx, stored.OrganizationID, enums.SubscriptionStatusPastDue); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
		}
		return s.audit.WithTx(tx).Record(ctx, audit.Entry{
			OrganizationID: stored.OrganizationID,
			Action:         audit.ActionSubscriptionSet,
			TargetType:     audit.TargetSubscription,
			TargetID:       &stored.ID,
			Metadata: map[string]any{
				"status": string(enums.SubscriptionStatusPastDue),
				"cause":  "invoice.payment_failed",
			},
		})
	})
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription, deleted bool) error {
	if stripeSub == nil || stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subscriptions.WithTx(tx)

		stored, err := s.locateSubscription(ctx, repo, stripeSub)
		if err != nil {
			return err
		}

		stored.StripeSubscriptionID = &stripeSub.ID
		if stripeSub.Customer != nil && stripeSub.Customer.ID != "" {
			customerID := stripeSub.Customer.ID
			stored.StripeCustomerID = &customerID
		}
		stored.Status = mapSubscriptionStatus(stripeSub.Status)
		stored.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
		if periodEnd := periodEndFromItems(stripeSub); periodEnd != nil {
			stored.CurrentPeriodEnd = periodEnd
		}

		if priceID := subscriptionPriceID(stripeSub); priceID != "" {
			plan, planErr := s.billing.WithTx(tx).FindPlanByStripePriceID(ctx, priceID)
			if planErr == nil {
				stored.PlanID = &plan.ID
				stored.Tier = plan.Tier
			} else if !errors.Is(planErr, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, planErr, "resolve plan")
			}
		}

		if deleted || stored.Status == enums.SubscriptionStatusCanceled {
			stored.Status = enums.SubscriptionStatusCanceled
			stored.Credits = 0
		}

		if err := repo.SaveSubscription(ctx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}

		return s.audit.WithTx(tx).Record(ctx, audit.Entry{
			OrganizationID: stored.OrganizationID,
			Action:         audit.ActionSubscriptionSet,
			TargetType:     audit.TargetSubscription,
			TargetID:       &stored.ID,
			Metadata: map[string]any{
				"status":  string(stored.Status),
				"plan_id": stored.PlanID,
			},
		})
	})
}

// locateSubscription prefers the Stripe link, then falls back to the
// organization_id the checkout session stamped into metadata.
func (s *Service) locateSubscription(ctx context.Context, repo *credits.Repository, stripeSub *stripe.Subscription) (*models.Subscription, error) {
	stored, err := repo.FindByStripeSubscriptionID(ctx, stripeSub.ID)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	orgID, parseErr := organizationIDFromMetadata(stripeSub.Metadata)
	if parseErr != nil {
		return nil, parseErr
	}
	stored, err = repo.FindByOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization has no subscription row")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return stored, nil
}

func (s *Service) resolvePlan(ctx context.Context, stored *models.Subscription, event *stripe.Event) (*models.BillingPlan, error) {
	if stored.PlanID != nil && *stored.PlanID != "" {
		plan, err := s.billing.FindPlanByID(ctx, *stored.PlanID)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
		}
	}
	if priceID := event.GetObjectValue("lines", "data", "0", "pricing", "price_details", "price"); priceID != "" {
		plan, err := s.billing.FindPlanByStripePriceID(ctx, priceID)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no plan resolvable for invoice")
}

func organizationIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := metadata["organization_id"]
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "organization_id missing from subscription metadata")
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse organization_id metadata")
	}
	return orgID, nil
}

func invoiceSubscriptionID(event *stripe.Event) string {
	if id := event.GetObjectValue("subscription"); id != "" {
		return id
	}
	return event.GetObjectValue("parent", "subscription_details", "subscription")
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func periodEndFromItems(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	ts := sub.Items.Data[0].CurrentPeriodEnd
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func parseUnixValue(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return enums.SubscriptionStatusUnpaid
	default:
		return enums.SubscriptionStatusPastDue
	}
}
