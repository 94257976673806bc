package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coutlabs/cout-backend/api/controllers"
	billingcontrollers "github.com/coutlabs/cout-backend/api/controllers/billing"
	webhookcontrollers "github.com/coutlabs/cout-backend/api/controllers/webhooks"
	"github.com/coutlabs/cout-backend/api/middleware"
	"github.com/coutlabs/cout-backend/internal/agents"
	"github.com/coutlabs/cout-backend/internal/auth"
	billingsvc "github.com/coutlabs/cout-backend/internal/billing"
	"github.com/coutlabs/cout-backend/internal/credits"
	"github.com/coutlabs/cout-backend/internal/jobs"
	"github.com/coutlabs/cout-backend/internal/users"
	stripewebhook "github.com/coutlabs/cout-backend/internal/webhooks/stripe"
	"github.com/coutlabs/cout-backend/pkg/auth/session"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db"
	"github.com/coutlabs/cout-backend/pkg/enums"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/redis"
	"github.com/coutlabs/cout-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           *redis.Client
	SessionVerifier session.AccessSessionChecker
	AuthService     auth.Service
	RegisterService auth.RegisterService
	AgentService    agents.Service
	JobService      jobs.Service
	CreditsService  credits.Service
	TeamService     users.Service
	BillingService  billingsvc.Service
	StripeClient    *stripe.Client
	WebhookService  *stripewebhook.Service
	WebhookGuard    *stripewebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.LoginThrottle(cfg.AuthRateLimit)
	registerPolicy := middleware.RegisterThrottle(cfg.AuthRateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.WebhookService, p.StripeClient, p.WebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.Throttle(registerPolicy, p.Redis, logg)).Post("/register", controllers.AuthRegister(p.RegisterService, p.AuthService, logg))
		r.With(middleware.Throttle(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(p.AuthService, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.SessionVerifier, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", controllers.AgentList(p.AgentService, logg))
			r.Get("/{agentId}", controllers.AgentDetail(p.AgentService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleManager, logg))
				r.Post("/", controllers.AgentCreate(p.AgentService, logg))
				r.Patch("/{agentId}", controllers.AgentUpdate(p.AgentService, logg))
				r.Delete("/{agentId}", controllers.AgentDelete(p.AgentService, logg))
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", controllers.JobSubmit(p.JobService, logg))
			r.Get("/", controllers.JobList(p.JobService, logg))
			r.Get("/{jobId}", controllers.JobDetail(p.JobService, logg))
		})

		r.Get("/usage", controllers.UsageSummary(p.CreditsService, logg))

		r.Route("/team", func(r chi.Router) {
			r.Get("/", controllers.TeamList(p.TeamService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
				r.Post("/invite", controllers.TeamInvite(p.TeamService, logg))
				r.Patch("/{memberId}", controllers.TeamUpdateMember(p.TeamService, logg))
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/plans", billingcontrollers.PlansList(p.BillingService, logg))
			r.With(middleware.RequireRole(enums.UserRoleAdmin, logg)).Post("/checkout", billingcontrollers.CheckoutCreate(p.BillingService, logg))
		})
	})

	return r
}
