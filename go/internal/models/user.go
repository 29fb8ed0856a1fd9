package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's permission tier.
type Role string

const (
	RoleTechnician Role = "technician"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTechnician, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller is the authenticated identity issuing a request.
type Caller struct {
	UserID    uuid.UUID `json:"user_id"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
}
