package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	pkgstripe "github.com/coutlabs/cout-backend/pkg/stripe"
)

// CheckoutClient exposes the subset of Stripe checkout operations the
// billing service needs, so tests can stub the hosted session call.
type CheckoutClient interface {
	NewSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type subscriptionReader interface {
	FindByOrganization(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
}

// Service exposes plan listing and checkout session creation.
type Service interface {
	ListPlans(ctx context.Context) ([]PlanDTO, error)
	CreateCheckout(ctx context.Context, orgID uuid.UUID, planID string) (*CheckoutSessionDTO, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionReader
	Checkout      CheckoutClient
	StripeConfig  config.StripeConfig
}

type service struct {
	repo          Repository
	subscriptions subscriptionReader
	checkout      CheckoutClient
	cfg           config.StripeConfig
}

// NewService builds a billing service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("billing repo is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription reader is required")
	}
	if params.Checkout == nil {
		return nil, errors.New("checkout client is required")
	}
	return &service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		checkout:      params.Checkout,
		cfg:           params.StripeConfig,
	}, nil
}

func (s *service) ListPlans(ctx context.Context) ([]PlanDTO, error) {
	status := enums.PlanStatusActive
	plans, err := s.repo.ListPlans(ctx, ListPlansQuery{Status: &status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing plans")
	}
	out := make([]PlanDTO, 0, len(plans))
	for i := range plans {
		out = append(out, FromPlanModel(&plans[i]))
	}
	return out, nil
}

func (s *service) CreateCheckout(ctx context.Context, orgID uuid.UUID, planID string) (*CheckoutSessionDTO, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}

	plan, err := s.repo.FindPlanByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available")
	}
	if plan.StripePriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan has no price configured")
	}

	sub, err := s.subscriptions.FindByOrganization(ctx, orgID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:         stripe.String(s.cfg.CheckoutCancelURL),
		ClientReferenceID: stripe.String(orgID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"organization_id": orgID.String(),
				"plan_id":         plan.ID,
			},
		},
	}
	if sub != nil && sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		params.Customer = sub.StripeCustomerID
	}

	session, err := s.checkout.NewSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &CheckoutSessionDTO{SessionID: session.ID, URL: session.URL}, nil
}

type checkoutClientWrapper struct{}

// NewCheckoutClient wraps the initialized Stripe client so the billing
// service can be tested without hitting Stripe.
func NewCheckoutClient(api *pkgstripe.Client) CheckoutClient {
	if api == nil {
		return nil
	}
	return &checkoutClientWrapper{}
}

func (w *checkoutClientWrapper) NewSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return checkoutsession.New(params)
}
