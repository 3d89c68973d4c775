package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

const minPasswordLength = 8

// AuthService coordinates registration, login, token refresh, and password
// flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	tokens     *auth.TokenManager
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time
}

// AuthDependencies bundles collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Tokens            *auth.TokenManager
	BcryptCost        int
	ResetTTL          time.Duration
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	resetTTL := deps.ResetTTL
	if resetTTL <= 0 {
		resetTTL = 30 * time.Minute
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		tokens:     deps.Tokens,
		bcryptCost: deps.BcryptCost,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// RegisterInput describes the self-registration payload.
type RegisterInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Phone          *string
	OrganizationID *string
}

// ProfileUpdateInput carries the self-service profile fields.
type ProfileUpdateInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// Register creates an account with the base user role and logs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, auth.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, auth.TokenPair{}, util.NewValidationError("a valid email is required", nil)
	}
	if len(input.Password) < minPasswordLength {
		return nil, auth.TokenPair{}, util.NewValidationError("password must be at least 8 characters", nil)
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, auth.TokenPair{}, util.NewValidationError("firstName and lastName are required", nil)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, auth.TokenPair{}, util.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.TokenPair{}, util.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, auth.TokenPair{}, util.MapError(err)
	}

	user := &domain.User{
		Email:          email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Role:           domain.RoleUser,
		OrganizationID: input.OrganizationID,
		Phone:          input.Phone,
		Active:         true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, auth.TokenPair{}, util.MapError(err)
	}

	return s.startSession(ctx, user)
}

// Login authenticates credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, auth.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.TokenPair{}, util.NewUnauthorized("invalid credentials")
		}
		return nil, auth.TokenPair{}, util.MapError(err)
	}
	if !user.Active {
		return nil, auth.TokenPair{}, util.NewUnauthorized("account disabled")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, auth.TokenPair{}, util.NewUnauthorized("invalid credentials")
	}

	return s.startSession(ctx, user)
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.User, string, time.Time, error) {
	accessToken, expiresAt, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, "", time.Time{}, util.NewUnauthorized("invalid refresh token")
	}

	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, "", time.Time{}, util.MapError(err)
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, "", time.Time{}, util.NewUnauthorized("invalid refresh token")
	}
	if !user.Active {
		return nil, "", time.Time{}, util.NewUnauthorized("account disabled")
	}
	return user, accessToken, expiresAt, nil
}

// Logout revokes the refresh lineage. Unparseable tokens are ignored so
// logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	err := s.tokens.Revoke(ctx, refreshToken)
	if errors.Is(err, auth.ErrInvalidRefreshToken) {
		return nil
	}
	return util.MapError(err)
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return util.NewValidationError("password must be at least 8 characters", nil)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return util.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return util.NewUnauthorized("invalid credentials")
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return util.MapError(err)
	}
	user.PasswordHash = hash
	return util.MapError(s.users.Update(ctx, user))
}

// UpdateProfile applies the self-service profile fields.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if input.FirstName != nil && strings.TrimSpace(*input.FirstName) != "" {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil && strings.TrimSpace(*input.LastName) != "" {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Phone != nil {
		user.Phone = input.Phone
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, util.MapError(err)
	}
	return user, nil
}

// ListUsers returns accounts for administration.
func (s *AuthService) ListUsers(ctx context.Context, actor *domain.User, limit, offset int) ([]domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, util.NewForbidden("insufficient permissions")
	}
	result, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// RequestPasswordReset persists a reset token for the email. An unknown
// email yields no token and no error, so the endpoint does not disclose
// which addresses exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*repository.PasswordResetToken, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, util.MapError(err)
	}

	token := &repository.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, util.MapError(err)
	}
	return token, nil
}

// ConfirmPasswordReset validates the reset token and stores the new hash.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return util.NewValidationError("password must be at least 8 characters", nil)
	}

	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewValidationError("invalid or expired reset token", nil)
		}
		return util.MapError(err)
	}
	if token.UsedAt != nil || s.now().After(token.ExpiresAt) {
		return util.NewValidationError("invalid or expired reset token", nil)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return util.MapError(err)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return util.MapError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return util.MapError(err)
	}
	return util.MapError(s.resets.MarkUsed(ctx, token.ID))
}

func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*domain.User, auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, auth.TokenPair{}, util.MapError(err)
	}

	loginAt := s.now().UTC()
	user.LastLogin = &loginAt
	if err := s.users.Update(ctx, user); err != nil {
		return nil, auth.TokenPair{}, util.MapError(err)
	}
	return user, pair, nil
}
