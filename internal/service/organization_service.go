package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

// OrganizationService manages tenant organizations and account
// administration. All operations are admin-gated.
type OrganizationService struct {
	organizations repository.OrganizationRepository
	users         repository.UserRepository
	bcryptCost    int
}

// OrgDependencies encapsulates repositories required for org management.
type OrgDependencies struct {
	OrganizationRepo repository.OrganizationRepository
	UserRepo         repository.UserRepository
	BcryptCost       int
}

// NewOrganizationService constructs the service.
func NewOrganizationService(deps OrgDependencies) *OrganizationService {
	return &OrganizationService{
		organizations: deps.OrganizationRepo,
		users:         deps.UserRepo,
		bcryptCost:    deps.BcryptCost,
	}
}

func requireAdmin(actor *domain.User) error {
	if actor == nil || actor.Role != domain.RoleAdmin {
		return util.NewForbidden("admin role required")
	}
	return nil
}

// CreateOrganization registers a new tenant. The code is the short
// uppercase handle used in external references.
func (s *OrganizationService) CreateOrganization(ctx context.Context, actor *domain.User, name, code string) (*domain.Organization, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	code = strings.ToUpper(strings.TrimSpace(code))
	if name == "" || code == "" {
		return nil, util.NewValidationError("name and code are required", nil)
	}

	if existing, err := s.organizations.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, util.NewConflict("organization code already exists", map[string]any{"code": code})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, util.MapError(err)
	}

	org := &domain.Organization{Name: name, Code: code, Active: true}
	if err := s.organizations.Create(ctx, org); err != nil {
		return nil, util.MapError(err)
	}
	return org, nil
}

// ListOrganizations returns all tenants.
func (s *OrganizationService) ListOrganizations(ctx context.Context, actor *domain.User) ([]domain.Organization, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	result, err := s.organizations.List(ctx)
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// GetOrganization fetches a tenant by id.
func (s *OrganizationService) GetOrganization(ctx context.Context, actor *domain.User, id string) (*domain.Organization, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	org, err := s.organizations.GetByID(ctx, id)
	if err != nil {
		return nil, util.MapError(err)
	}
	return org, nil
}

// UpdateOrganization modifies tenant metadata or toggles activation.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, actor *domain.User, id string, name, code *string, active *bool) (*domain.Organization, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	org, err := s.organizations.GetByID(ctx, id)
	if err != nil {
		return nil, util.MapError(err)
	}

	if name != nil && strings.TrimSpace(*name) != "" {
		org.Name = strings.TrimSpace(*name)
	}
	if code != nil && strings.TrimSpace(*code) != "" {
		next := strings.ToUpper(strings.TrimSpace(*code))
		if next != org.Code {
			if existing, err := s.organizations.GetByCode(ctx, next); err == nil && existing != nil && existing.ID != org.ID {
				return nil, util.NewConflict("organization code already exists", map[string]any{"code": next})
			} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, util.MapError(err)
			}
			org.Code = next
		}
	}
	if active != nil {
		org.Active = *active
	}

	if err := s.organizations.Update(ctx, org); err != nil {
		return nil, util.MapError(err)
	}
	return org, nil
}

// AccountCreateInput describes an admin-provisioned account.
type AccountCreateInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           domain.UserRole
	OrganizationID *string
	Phone          *string
}

// CreateAccount provisions an account with an explicit role, used to onboard
// support agents and partner contacts.
func (s *OrganizationService) CreateAccount(ctx context.Context, actor *domain.User, input AccountCreateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || len(input.Password) < minPasswordLength {
		return nil, util.NewValidationError("valid email and password are required", nil)
	}
	if !domain.ValidUserRole(input.Role) {
		return nil, util.NewValidationError("unknown role", map[string]any{"role": input.Role})
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, util.NewConflict("email already registered", map[string]any{"email": email})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, util.MapError(err)
	}

	if input.OrganizationID != nil && *input.OrganizationID != "" {
		if _, err := s.organizations.GetByID(ctx, *input.OrganizationID); err != nil {
			return nil, util.MapError(err)
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	user := &domain.User{
		Email:          email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Role:           input.Role,
		OrganizationID: input.OrganizationID,
		Phone:          input.Phone,
		Active:         true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, util.MapError(err)
	}
	return user, nil
}

// AccountUpdateInput carries administrative account mutations.
type AccountUpdateInput struct {
	Role           *domain.UserRole
	OrganizationID *string
	Active         *bool
}

// UpdateAccount changes role, organization, or activation for an account.
func (s *OrganizationService) UpdateAccount(ctx context.Context, actor *domain.User, userID string, input AccountUpdateInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, util.MapError(err)
	}

	if input.Role != nil {
		if !domain.ValidUserRole(*input.Role) {
			return nil, util.NewValidationError("unknown role", map[string]any{"role": *input.Role})
		}
		user.Role = *input.Role
	}
	if input.OrganizationID != nil {
		if *input.OrganizationID == "" {
			user.OrganizationID = nil
		} else {
			if _, err := s.organizations.GetByID(ctx, *input.OrganizationID); err != nil {
				return nil, util.MapError(err)
			}
			user.OrganizationID = input.OrganizationID
		}
	}
	if input.Active != nil {
		user.Active = *input.Active
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, util.MapError(err)
	}
	return user, nil
}
