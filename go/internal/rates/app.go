package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrValidation wraps malformed rate requests.
var ErrValidation = errors.New("validation failed")

// RatesRepository defines what the app layer needs from the repository
type RatesRepository interface {
	GetRate(ctx context.Context, id uuid.UUID) (*models.BillingRate, error)
	GetDefaultRate(ctx context.Context, accountID uuid.UUID) (*models.BillingRate, error)
	ListRates(ctx context.Context, accountID uuid.UUID, includeInactive bool) ([]models.BillingRate, error)
	CreateRate(ctx context.Context, req CreateRateRequest) (*models.BillingRate, error)
	SetDefaultRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error)
	DeactivateRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error)
}

// App handles billing rate business logic and serves rate snapshots to
// timer conversion.
type App struct {
	repo RatesRepository
}

func NewApp(repo RatesRepository) *App {
	return &App{repo: repo}
}

// RateFor resolves the rate a timer bills at. An explicit rate must belong
// to the account; it is honored even after deactivation so timers started
// under it keep their price. Without one the account default applies, and
// an account with no default returns nil.
func (a *App) RateFor(ctx context.Context, accountID uuid.UUID, rateID *uuid.UUID) (*models.BillingRate, error) {
	if rateID != nil {
		rate, err := a.repo.GetRate(ctx, *rateID)
		if err != nil {
			return nil, err
		}
		if rate.AccountID != accountID {
			return nil, fmt.Errorf("rate %s in account %s: %w", rateID, accountID, ErrRateNotFound)
		}
		return rate, nil
	}

	rate, err := a.repo.GetDefaultRate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (a *App) ListRates(ctx context.Context, accountID uuid.UUID, includeInactive bool) ([]models.BillingRate, error) {
	return a.repo.ListRates(ctx, accountID, includeInactive)
}

func (a *App) CreateRate(ctx context.Context, req CreateRateRequest) (*models.BillingRate, error) {
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.AccountID == uuid.Nil:
		return nil, fmt.Errorf("%w: account_id is required", ErrValidation)
	case req.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case req.HourlyCents < 0:
		return nil, fmt.Errorf("%w: hourly_cents cannot be negative", ErrValidation)
	}

	rate, err := a.repo.CreateRate(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("rate_id", rate.ID.String()).
		Str("account_id", rate.AccountID.String()).
		Int64("hourly_cents", rate.HourlyCents).
		Bool("default", rate.IsDefault).
		Msg("created billing rate")
	return rate, nil
}

func (a *App) SetDefaultRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error) {
	rate, err := a.repo.SetDefaultRate(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("rate_id", id.String()).Str("account_id", accountID.String()).Msg("changed default billing rate")
	return rate, nil
}

func (a *App) DeactivateRate(ctx context.Context, accountID, id uuid.UUID) (*models.BillingRate, error) {
	return a.repo.DeactivateRate(ctx, accountID, id)
}
