package domain

import "time"

// Organization groups users and their requests for multi-tenant scoping.
type Organization struct {
	ID        string
	Name      string
	Code      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
