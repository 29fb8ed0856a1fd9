package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrValidation wraps malformed user requests.
var ErrValidation = errors.New("validation failed")

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// App handles users business logic. It is also the directory the
// authorizer consults for roles.
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateUser creates a new user. Role defaults to technician.
func (a *App) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleTechnician
	}
	if err := validateUser(req.Username, req.Email, req.Role); err != nil {
		return nil, err
	}
	if req.AccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: account_id is required", ErrValidation)
	}

	if existing, err := a.repo.GetUserByUsername(ctx, req.Username); err == nil && existing != nil {
		return nil, fmt.Errorf("username %s: %w", req.Username, ErrUserExists)
	}
	if existing, err := a.repo.GetUserByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, fmt.Errorf("email %s: %w", req.Email, ErrUserExists)
	}

	user, err := a.repo.CreateUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Str("role", string(user.Role)).
		Msg("created user")
	return user, nil
}

// GetUser retrieves a user by ID
func (a *App) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (a *App) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (a *App) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// ListAccountUsers returns every user in an account, ordered by username.
func (a *App) ListAccountUsers(ctx context.Context, accountID uuid.UUID) ([]models.User, error) {
	users, err := a.repo.ListUsersByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account users: %w", err)
	}
	return users, nil
}

// UpdateUser updates an existing user with validation
func (a *App) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error) {
	existing, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if req.Role == "" {
		req.Role = existing.Role
	}
	if err := validateUser(req.Username, req.Email, req.Role); err != nil {
		return nil, err
	}

	if req.Username != existing.Username {
		if conflict, err := a.repo.GetUserByUsername(ctx, req.Username); err == nil && conflict != nil {
			return nil, fmt.Errorf("username %s: %w", req.Username, ErrUserExists)
		}
	}
	if req.Email != existing.Email {
		if conflict, err := a.repo.GetUserByEmail(ctx, req.Email); err == nil && conflict != nil {
			return nil, fmt.Errorf("email %s: %w", req.Email, ErrUserExists)
		}
	}

	user, err := a.repo.UpdateUser(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("updated user")
	return user, nil
}

// DeleteUser deletes a user by ID
func (a *App) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := a.repo.GetUser(ctx, id); err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if err := a.repo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	log.Info().Str("user_id", id.String()).Msg("deleted user")
	return nil
}

func validateUser(username, email string, role models.Role) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	at := strings.Index(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return fmt.Errorf("%w: email format is invalid", ErrValidation)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return nil
}
