package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/rates/db"
	"github.com/mcdev12/servicedesk/go/internal/sqlutil"
)

var (
	// ErrRateNotFound is returned when a rate does not exist in the account.
	ErrRateNotFound = errors.New("billing rate not found")
	// ErrRateExists is returned when the account already has a rate with that name.
	ErrRateExists = errors.New("billing rate already exists")
)

// Repository implements billing rate data access. Default changes run in a
// transaction so an account never has two defaults.
type Repository struct {
	db      *sql.DB
	queries *db.Queries
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		db:      conn,
		queries: db.New(conn),
	}
}

func (r *Repository) GetRate(ctx context.Context, id uuid.UUID) (*models.BillingRate, error) {
	row, err := r.queries.GetBillingRate(ctx, id)
	if err != nil {
		return nil, mapError("get billing rate", err)
	}
	return toModel(row), nil
}

// GetDefaultRate returns the account's active default rate, or nil when none is set.
func (r *Repository) GetDefaultRate(ctx context.Context, accountID uuid.UUID) (*models.BillingRate, error) {
	row, err := r.queries.GetDefaultBillingRate(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default billing rate: %w", err)
	}
	return toModel(row), nil
}

func (r *Repository) ListRates(ctx context.Context, accountID uuid.UUID, includeInactive bool) ([]models.BillingRate, error) {
	rows, err := r.queries.ListBillingRates(ctx, accountID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing rates: %w", err)
	}
	out := make([]models.BillingRate, len(rows))
	for i, row := range rows {
		out[i] = *toModel(row)
	}
	return out, nil
}

func (r *Repository) CreateRate(ctx context.Context, req CreateRateRequest) (*models.BillingRate, error) {
	row, err := sqlutil.RunValue(ctx, r.db, r.queries.WithTx, func(q *db.Queries) (db.BillingRate, error) {
		if req.IsDefault {
			if err := q.ClearDefaultBillingRate(ctx, req.AccountID); err != nil {
				return db.BillingRate{}, err
			}
		}
		return q.CreateBillingRate(ctx, db.CreateBillingRateParams{
			AccountID:   req.AccountID,
			Name:        req.Name,
			HourlyCents: req.HourlyCents,
			IsDefault:   req.IsDefault,
		})
	})
	if err != nil {
		return nil, mapError("create billing rate", err)
	}
	return toModel(row), nil
}

func (r *Repository) SetDefaultRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error) {
	row, err := sqlutil.RunValue(ctx, r.db, r.queries.WithTx, func(q *db.Queries) (db.BillingRate, error) {
		if err := q.ClearDefaultBillingRate(ctx, accountID); err != nil {
			return db.BillingRate{}, err
		}
		return q.SetDefaultBillingRate(ctx, id, accountID)
	})
	if err != nil {
		return nil, mapError("set default billing rate", err)
	}
	return toModel(row), nil
}

func (r *Repository) DeactivateRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error) {
	row, err := r.queries.DeactivateBillingRate(ctx, id, accountID)
	if err != nil {
		return nil, mapError("deactivate billing rate", err)
	}
	return toModel(row), nil
}

func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to %s: %w", op, ErrRateNotFound)
	}
	if _, ok := sqlutil.UniqueViolation(err); ok {
		return fmt.Errorf("failed to %s: %w", op, ErrRateExists)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func toModel(row db.BillingRate) *models.BillingRate {
	return &models.BillingRate{
		ID:          row.ID,
		AccountID:   row.AccountID,
		Name:        row.Name,
		HourlyCents: row.HourlyCents,
		IsDefault:   row.IsDefault,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt,
	}
}
