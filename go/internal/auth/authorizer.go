package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// ErrUserNotFound is what a UserDirectory returns for an unknown user.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory looks up users and their roles.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RoleAuthorizer decides timer permissions from the users directory.
// A user may always act for themself. A manager may act for technicians
// in the same account. An admin may act for anyone.
type RoleAuthorizer struct {
	users UserDirectory
}

// NewRoleAuthorizer creates a RoleAuthorizer
func NewRoleAuthorizer(users UserDirectory) *RoleAuthorizer {
	return &RoleAuthorizer{users: users}
}

// CanActFor reports whether caller may create or manage timers owned by ownerID.
func (a *RoleAuthorizer) CanActFor(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (bool, error) {
	if caller.UserID == uuid.Nil {
		return false, nil
	}
	if caller.UserID == ownerID {
		return true, nil
	}

	actor, err := a.lookup(ctx, caller.UserID)
	if err != nil || actor == nil {
		return false, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleManager:
		owner, err := a.lookup(ctx, ownerID)
		if err != nil || owner == nil {
			return false, err
		}
		return owner.AccountID == actor.AccountID && owner.Role == models.RoleTechnician, nil
	default:
		return false, nil
	}
}

// CanActOn reports whether caller may operate on the timer.
func (a *RoleAuthorizer) CanActOn(ctx context.Context, caller models.Caller, t *models.Timer) (bool, error) {
	return a.CanActFor(ctx, caller, t.OwnerID)
}

// IsAdmin reports whether the caller holds the admin role in the directory.
// The role claim in the token is not trusted for overrides.
func (a *RoleAuthorizer) IsAdmin(ctx context.Context, caller models.Caller) (bool, error) {
	actor, err := a.lookup(ctx, caller.UserID)
	if err != nil || actor == nil {
		return false, err
	}
	return actor.Role == models.RoleAdmin, nil
}

func (a *RoleAuthorizer) lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user %s: %w", id, err)
	}
	return u, nil
}
