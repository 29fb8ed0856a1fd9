package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/sqlutil"
	"github.com/mcdev12/servicedesk/go/internal/users/db"
)

var (
	// ErrUserNotFound is the directory's not-found error; authorizers match it with errors.Is.
	ErrUserNotFound = auth.ErrUserNotFound
	// ErrUserExists is returned when a username or email is already taken.
	ErrUserExists = errors.New("user already exists")
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (db.User, error)
	GetUserByUsername(ctx context.Context, username string) (db.User, error)
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	ListUsersByAccount(ctx context.Context, accountID uuid.UUID) ([]db.User, error)
	UpdateUser(ctx context.Context, arg db.UpdateUserParams) (db.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Repository implements user data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new users repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

func (r *Repository) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	user, err := r.queries.CreateUser(ctx, db.CreateUserParams{
		AccountID: req.AccountID,
		Username:  req.Username,
		Email:     req.Email,
		Role:      string(req.Role),
	})
	if err != nil {
		return nil, mapError("create user", err)
	}
	return dbUserToModel(user), nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.queries.GetUser(ctx, id)
	if err != nil {
		return nil, mapError("get user", err)
	}
	return dbUserToModel(user), nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := r.queries.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapError("get user by username", err)
	}
	return dbUserToModel(user), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := r.queries.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, mapError("get user by email", err)
	}
	return dbUserToModel(user), nil
}

func (r *Repository) ListUsersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.User, error) {
	rows, err := r.queries.ListUsersByAccount(ctx, accountID)
	if err != nil {
		return nil, mapError("list users", err)
	}
	out := make([]models.User, len(rows))
	for i, row := range rows {
		out[i] = *dbUserToModel(row)
	}
	return out, nil
}

func (r *Repository) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error) {
	user, err := r.queries.UpdateUser(ctx, db.UpdateUserParams{
		ID:       id,
		Username: req.Username,
		Email:    req.Email,
		Role:     string(req.Role),
	})
	if err != nil {
		return nil, mapError("update user", err)
	}
	return dbUserToModel(user), nil
}

func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteUser(ctx, id); err != nil {
		return mapError("delete user", err)
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to %s: %w", op, ErrUserNotFound)
	}
	if _, ok := sqlutil.UniqueViolation(err); ok {
		return fmt.Errorf("failed to %s: %w", op, ErrUserExists)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func dbUserToModel(u db.User) *models.User {
	return &models.User{
		ID:        u.ID,
		AccountID: u.AccountID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      models.Role(u.Role),
		CreatedAt: u.CreatedAt,
	}
}
