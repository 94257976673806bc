package billing

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/coutlabs/cout-backend/api/middleware"
	"github.com/coutlabs/cout-backend/api/responses"
	"github.com/coutlabs/cout-backend/api/validators"
	billingsvc "github.com/coutlabs/cout-backend/internal/billing"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/logger"
)

type checkoutRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// PlansList returns the purchasable plans ordered by price.
func PlansList(svc billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		plans, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string][]billingsvc.PlanDTO{"plans": plans})
	}
}

// CheckoutCreate starts a Stripe checkout session for a plan.
func CheckoutCreate(svc billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		raw := middleware.OrganizationIDFromContext(r.Context())
		orgID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid organization id"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateCheckout(r.Context(), orgID, body.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
