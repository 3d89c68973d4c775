package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// AuthHandler exposes registration, login, and token endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	user, pair, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		return err
	}
	return created(c, fiber.Map{
		"user": dto.NewUserResponse(user),
		"auth": authResponse(pair),
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return util.NewValidationError("email and password are required", nil)
	}

	user, pair, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"user": dto.NewUserResponse(user),
		"auth": authResponse(pair),
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return util.NewValidationError("refreshToken is required", nil)
	}

	user, accessToken, expiresAt, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"user": dto.NewUserResponse(user),
		"auth": dto.AuthResponse{
			AccessToken:     accessToken,
			AccessExpiresAt: expiresAt,
		},
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return okMessage(c, "logged out")
}

// ChangePassword handles POST /api/auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.ChangePassword(c.UserContext(), caller.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return okMessage(c, "password changed")
}

// RequestPasswordReset handles POST /api/auth/password/forgot.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return util.NewValidationError("email is required", nil)
	}
	if _, err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	// Same response whether the email exists or not.
	return okMessage(c, "if the email exists, a reset link has been sent")
}

// ConfirmPasswordReset handles POST /api/auth/password/reset.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return util.NewValidationError("token and newPassword are required", nil)
	}
	if err := h.auth.ConfirmPasswordReset(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return okMessage(c, "password reset")
}

// Profile handles GET /api/auth/profile.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	return ok(c, dto.NewUserResponse(caller))
}

// UpdateProfile handles PUT /api/auth/profile.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.UpdateProfile(c.UserContext(), caller.ID, service.ProfileUpdateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return err
	}
	return ok(c, dto.NewUserResponse(user))
}

func authResponse(pair auth.TokenPair) dto.AuthResponse {
	return dto.AuthResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
