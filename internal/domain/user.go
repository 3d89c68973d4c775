package domain

import "time"

// UserRole enumerates caller roles across the platform.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleSupport UserRole = "support"
	RoleUser    UserRole = "user"
	RolePartner UserRole = "partner"
)

// Elevated reports whether the role may act across organizations.
func (r UserRole) Elevated() bool {
	return r == RoleAdmin || r == RoleSupport
}

// ValidUserRole reports whether the value is a known role.
func ValidUserRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleSupport, RoleUser, RolePartner:
		return true
	}
	return false
}

// User is the domain model for every authenticated account, customer or staff.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Role           UserRole
	OrganizationID *string
	Phone          *string
	Active         bool
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName renders the display label used for chat messages.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
