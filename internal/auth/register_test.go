package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/users"
	"github.com/coutlabs/cout-backend/pkg/config"
	pkgmodels "github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
)

type stubTxRunner struct{}

func (s stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubUserRepository struct {
	data      map[string]*pkgmodels.User
	created   *pkgmodels.User
	createErr error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{data: map[string]*pkgmodels.User{}}
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (*pkgmodels.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) Create(ctx context.Context, dto users.CreateUserDTO) (*pkgmodels.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := &pkgmodels.User{
		ID:             uuid.New(),
		OrganizationID: dto.OrganizationID,
		Email:          dto.Email,
		PasswordHash:   dto.PasswordHash,
		Name:           dto.Name,
		Role:           dto.Role,
		IsActive:       true,
	}
	s.data[dto.Email] = user
	s.created = user
	return user, nil
}

type stubOrgRepository struct {
	slugs   map[string]bool
	created *pkgmodels.Organization
}

func newStubOrgRepository() *stubOrgRepository {
	return &stubOrgRepository{slugs: map[string]bool{}}
}

func (s *stubOrgRepository) Create(ctx context.Context, org *pkgmodels.Organization) error {
	org.ID = uuid.New()
	s.slugs[org.Slug] = true
	s.created = org
	return nil
}

func (s *stubOrgRepository) FindBySlug(ctx context.Context, slug string) (*pkgmodels.Organization, error) {
	if s.slugs[slug] {
		return &pkgmodels.Organization{Slug: slug}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubSubscriptionRepository struct {
	created *pkgmodels.Subscription
	err     error
}

func (s *stubSubscriptionRepository) CreateSubscription(ctx context.Context, sub *pkgmodels.Subscription) error {
	if s.err != nil {
		return s.err
	}
	s.created = sub
	return nil
}

type registerTestSetup struct {
	service          RegisterService
	userRepo         *stubUserRepository
	orgRepo          *stubOrgRepository
	subscriptionRepo *stubSubscriptionRepository
}

func newRegisterTestSetup(t *testing.T) *registerTestSetup {
	t.Helper()
	userRepo := newStubUserRepository()
	orgRepo := newStubOrgRepository()
	subscriptionRepo := &stubSubscriptionRepository{}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner: stubTxRunner{},
		UserRepoFactory: func(tx *gorm.DB) registerUserRepository {
			return userRepo
		},
		OrgRepoFactory: func(tx *gorm.DB) registerOrgRepository {
			return orgRepo
		},
		SubscriptionRepoFactory: func(tx *gorm.DB) registerSubscriptionRepository {
			return subscriptionRepo
		},
		PasswordConfig: config.PasswordConfig{},
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	return &registerTestSetup{
		service:          svc,
		userRepo:         userRepo,
		orgRepo:          orgRepo,
		subscriptionRepo: subscriptionRepo,
	}
}

func sampleRegisterRequest(email, orgName string) RegisterRequest {
	return RegisterRequest{
		OrganizationName: orgName,
		Name:             "Jamie Rivera",
		Email:            email,
		Password:         "Secret123!",
	}
}

func TestRegisterCreatesOrgAdminAndSubscription(t *testing.T) {
	setup := newRegisterTestSetup(t)
	req := sampleRegisterRequest("new@example.com", "Acme Labs")

	if err := setup.service.Register(context.Background(), req); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if setup.orgRepo.created == nil {
		t.Fatalf("expected organization to be created")
	}
	if setup.orgRepo.created.Slug != "acme-labs" {
		t.Fatalf("expected slug acme-labs, got %q", setup.orgRepo.created.Slug)
	}
	if setup.userRepo.created == nil {
		t.Fatalf("expected user to be created")
	}
	if setup.userRepo.created.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role, got %s", setup.userRepo.created.Role)
	}
	if setup.userRepo.created.OrganizationID != setup.orgRepo.created.ID {
		t.Fatalf("user not linked to created organization")
	}
	sub := setup.subscriptionRepo.created
	if sub == nil {
		t.Fatalf("expected subscription to be created")
	}
	if sub.OrganizationID != setup.orgRepo.created.ID {
		t.Fatalf("subscription not linked to created organization")
	}
	if sub.Tier != enums.PlanTierFree {
		t.Fatalf("expected FREE tier, got %s", sub.Tier)
	}
	if sub.Credits != starterCredits {
		t.Fatalf("expected %d starter credits, got %d", starterCredits, sub.Credits)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	setup := newRegisterTestSetup(t)
	setup.userRepo.data["taken@example.com"] = &pkgmodels.User{
		ID:    uuid.New(),
		Email: "taken@example.com",
	}

	err := setup.service.Register(context.Background(), sampleRegisterRequest("Taken@Example.com", "Acme Labs"))
	if err == nil {
		t.Fatalf("expected conflict for duplicate email")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if setup.orgRepo.created != nil {
		t.Fatalf("expected no organization for rejected registration")
	}
}

func TestRegisterSuffixesSlugOnCollision(t *testing.T) {
	setup := newRegisterTestSetup(t)
	setup.orgRepo.slugs["acme-labs"] = true

	if err := setup.service.Register(context.Background(), sampleRegisterRequest("second@example.com", "Acme Labs")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	slug := setup.orgRepo.created.Slug
	if !strings.HasPrefix(slug, "acme-labs-") {
		t.Fatalf("expected suffixed slug, got %q", slug)
	}
	if len(slug) <= len("acme-labs-") {
		t.Fatalf("expected non-empty suffix, got %q", slug)
	}
}
