package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// RegisterRequest payload.
type RegisterRequest struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	Phone          *string `json:"phone"`
	OrganizationID *string `json:"organizationId"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest payload.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// PasswordResetRequest payload.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ProfileUpdateRequest payload.
type ProfileUpdateRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
}

// AuthResponse carries the issued token pair.
type AuthResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	Role           domain.UserRole `json:"role"`
	OrganizationID *string         `json:"organizationId"`
	Phone          *string         `json:"phone"`
	Active         bool            `json:"active"`
	LastLogin      *time.Time      `json:"lastLogin"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
		Phone:          user.Phone,
		Active:         user.Active,
		LastLogin:      user.LastLogin,
		CreatedAt:      user.CreatedAt,
	}
}

// AccountCreateRequest is the admin provisioning payload.
type AccountCreateRequest struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	Role           string  `json:"role"`
	OrganizationID *string `json:"organizationId"`
	Phone          *string `json:"phone"`
}

// AccountUpdateRequest is the admin account mutation payload.
type AccountUpdateRequest struct {
	Role           *string `json:"role"`
	OrganizationID *string `json:"organizationId"`
	Active         *bool   `json:"active"`
}

// OrganizationCreateRequest payload.
type OrganizationCreateRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// OrganizationUpdateRequest payload.
type OrganizationUpdateRequest struct {
	Name   *string `json:"name"`
	Code   *string `json:"code"`
	Active *bool   `json:"active"`
}

// OrganizationResponse view.
type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewOrganizationResponse maps a domain organization.
func NewOrganizationResponse(org *domain.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Code:      org.Code,
		Active:    org.Active,
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
}
