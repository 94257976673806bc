package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coutlabs/cout-backend/internal/audit"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db/models"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/security"
)

const tempPasswordLength = 16

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// InviteMemberInput carries a new member invitation.
type InviteMemberInput struct {
	Email string         `json:"email" validate:"required,email"`
	Name  string         `json:"name" validate:"required,min=1,max=120"`
	Role  enums.UserRole `json:"role"`
}

// InviteResult returns the created member plus the one-time credential.
// The temp password is only ever surfaced in this response.
type InviteResult struct {
	User         *UserDTO `json:"user"`
	TempPassword string   `json:"temp_password"`
}

// UpdateMemberInput patches a member's role or active flag.
type UpdateMemberInput struct {
	Role     *enums.UserRole `json:"role"`
	IsActive *bool           `json:"is_active"`
}

// Service manages an organization's team.
type Service interface {
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]UserDTO, error)
	Invite(ctx context.Context, orgID, actorID uuid.UUID, input InviteMemberInput) (*InviteResult, error)
	UpdateMember(ctx context.Context, orgID, actorID, memberID uuid.UUID, input UpdateMemberInput) (*UserDTO, error)
}

// ServiceParams groups dependencies for the team service.
type ServiceParams struct {
	Repo           *Repository
	Audit          auditRecorder
	PasswordConfig config.PasswordConfig
}

type service struct {
	repo        *Repository
	audit       auditRecorder
	passwordCfg config.PasswordConfig
}

// NewService builds a team service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit recorder is required")
	}
	return &service{
		repo:        params.Repo,
		audit:       params.Audit,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]UserDTO, error) {
	members, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	out := make([]UserDTO, 0, len(members))
	for i := range members {
		out = append(out, *FromModel(&members[i]))
	}
	return out, nil
}

func (s *service) Invite(ctx context.Context, orgID, actorID uuid.UUID, input InviteMemberInput) (*InviteResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	role := input.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	if !role.IsValid() || role == enums.UserRoleSuperAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member role")
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
	}
	hash, err := security.HashPassword(tempPassword, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash temp password")
	}

	user, err := s.repo.Create(ctx, CreateUserDTO{
		OrganizationID: orgID,
		Email:          email,
		PasswordHash:   hash,
		Name:           strings.TrimSpace(input.Name),
		Role:           role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}

	s.recordAudit(ctx, orgID, actorID, audit.ActionMemberInvited, user.ID, map[string]any{
		"email": email,
		"role":  string(role),
	})

	return &InviteResult{User: FromModel(user), TempPassword: tempPassword}, nil
}

func (s *service) UpdateMember(ctx context.Context, orgID, actorID, memberID uuid.UUID, input UpdateMemberInput) (*UserDTO, error) {
	if input.Role == nil && input.IsActive == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	member, err := s.loadMember(ctx, orgID, memberID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}

	if input.Role != nil {
		role := *input.Role
		if !role.IsValid() || role == enums.UserRoleSuperAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member role")
		}
		if member.ID == actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own role")
		}
		if err := s.repo.UpdateRole(ctx, member.ID, role); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
		}
		member.Role = role
		metadata["role"] = string(role)
	}

	if input.IsActive != nil {
		active := *input.IsActive
		if member.ID == actorID && !active {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot deactivate yourself")
		}
		if err := s.repo.SetActive(ctx, member.ID, active); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update active flag")
		}
		member.IsActive = active
		metadata["is_active"] = active
	}

	s.recordAudit(ctx, orgID, actorID, audit.ActionMemberUpdated, member.ID, metadata)

	return FromModel(member), nil
}

func (s *service) loadMember(ctx context.Context, orgID, memberID uuid.UUID) (*models.User, error) {
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	if member.OrganizationID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	return member, nil
}

func (s *service) recordAudit(ctx context.Context, orgID, actorID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	_ = s.audit.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         &actorID,
		Action:         action,
		TargetType:     audit.TargetUser,
		TargetID:       &targetID,
		Metadata:       metadata,
	})
}
