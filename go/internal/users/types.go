package users

import (
	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// CreateUserRequest represents the data needed to create a new user
type CreateUserRequest struct {
	AccountID uuid.UUID   `json:"account_id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role,omitempty"`
}

// UpdateUserRequest represents the data that can be updated for a user
type UpdateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}
