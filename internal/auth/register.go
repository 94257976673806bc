package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/credits"
	"github.com/coutlabs/cout-backend/internal/orgs"
	"github.com/coutlabs/cout-backend/internal/users"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/security"
)

// starterCredits is the balance granted to every new organization.
const starterCredits = 100

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) error
}

// TxRunner abstracts the transactional boundary used by registration.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registerUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

type registerOrgRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	FindBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

type registerSubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	TxRunner                TxRunner
	UserRepoFactory         func(tx *gorm.DB) registerUserRepository
	OrgRepoFactory          func(tx *gorm.DB) registerOrgRepository
	SubscriptionRepoFactory func(tx *gorm.DB) registerSubscriptionRepository
	PasswordConfig          config.PasswordConfig
}

type registerService struct {
	tx               TxRunner
	userRepo         func(tx *gorm.DB) registerUserRepository
	orgRepo          func(tx *gorm.DB) registerOrgRepository
	subscriptionRepo func(tx *gorm.DB) registerSubscriptionRepository
	passwordCfg      config.PasswordConfig
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.UserRepoFactory == nil {
		params.UserRepoFactory = func(tx *gorm.DB) registerUserRepository {
			return users.NewRepository(tx)
		}
	}
	if params.OrgRepoFactory == nil {
		params.OrgRepoFactory = func(tx *gorm.DB) registerOrgRepository {
			return orgs.NewRepository(tx)
		}
	}
	if params.SubscriptionRepoFactory == nil {
		params.SubscriptionRepoFactory = func(tx *gorm.DB) registerSubscriptionRepository {
			return credits.NewRepository(tx)
		}
	}
	return &registerService{
		tx:               params.TxRunner,
		userRepo:         params.UserRepoFactory,
		orgRepo:          params.OrgRepoFactory,
		subscriptionRepo: params.SubscriptionRepoFactory,
		passwordCfg:      params.PasswordConfig,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization name is required")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)
		orgRepo := s.orgRepo(tx)
		subscriptionRepo := s.subscriptionRepo(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		slug, err := resolveSlug(ctx, orgRepo, orgName)
		if err != nil {
			return err
		}

		org := &models.Organization{
			Name: orgName,
			Slug: slug,
		}
		if err := orgRepo.Create(ctx, org); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create organization")
		}

		if _, err := userRepo.Create(ctx, users.CreateUserDTO{
			OrganizationID: org.ID,
			Email:          email,
			PasswordHash:   passwordHash,
			Name:           strings.TrimSpace(req.Name),
			Role:           enums.UserRoleAdmin,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		if err := subscriptionRepo.CreateSubscription(ctx, &models.Subscription{
			OrganizationID: org.ID,
			Tier:           enums.PlanTierFree,
			Credits:        starterCredits,
			Status:         enums.SubscriptionStatusActive,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}

		return nil
	})
}

func resolveSlug(ctx context.Context, repo registerOrgRepository, name string) (string, error) {
	slug := slugify(name)
	if slug == "" {
		slug = uuid.NewString()[:8]
	}
	if _, err := repo.FindBySlug(ctx, slug); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return slug, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organization slug")
	}
	return slug + "-" + uuid.NewString()[:8], nil
}

func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
