package db

import (
	"context"

	"github.com/google/uuid"
)

const billingRateColumns = `id, account_id, name, hourly_cents, is_default, active, created_at`

func scanBillingRate(row interface{ Scan(dest ...interface{}) error }) (BillingRate, error) {
	var i BillingRate
	err := row.Scan(
		&i.ID,
		&i.AccountID,
		&i.Name,
		&i.HourlyCents,
		&i.IsDefault,
		&i.Active,
		&i.CreatedAt,
	)
	return i, err
}

const createBillingRate = `-- name: CreateBillingRate :one
INSERT INTO billing_rates (account_id, name, hourly_cents, is_default)
VALUES ($1, $2, $3, $4)
RETURNING ` + billingRateColumns

type CreateBillingRateParams struct {
	AccountID   uuid.UUID
	Name        string
	HourlyCents int64
	IsDefault   bool
}

func (q *Queries) CreateBillingRate(ctx context.Context, arg CreateBillingRateParams) (BillingRate, error) {
	row := q.db.QueryRowContext(ctx, createBillingRate,
		arg.AccountID,
		arg.Name,
		arg.HourlyCents,
		arg.IsDefault,
	)
	return scanBillingRate(row)
}

const getBillingRate = `-- name: GetBillingRate :one
SELECT ` + billingRateColumns + ` FROM billing_rates WHERE id = $1
`

func (q *Queries) GetBillingRate(ctx context.Context, id uuid.UUID) (BillingRate, error) {
	return scanBillingRate(q.db.QueryRowContext(ctx, getBillingRate, id))
}

const getDefaultBillingRate = `-- name: GetDefaultBillingRate :one
SELECT ` + billingRateColumns + ` FROM billing_rates
WHERE account_id = $1 AND is_default AND active
`

func (q *Queries) GetDefaultBillingRate(ctx context.Context, accountID uuid.UUID) (BillingRate, error) {
	return scanBillingRate(q.db.QueryRowContext(ctx, getDefaultBillingRate, accountID))
}

const listBillingRates = `-- name: ListBillingRates :many
SELECT ` + billingRateColumns + ` FROM billing_rates
WHERE account_id = $1 AND (active OR $2::boolean)
ORDER BY name
`

func (q *Queries) ListBillingRates(ctx context.Context, accountID uuid.UUID, includeInactive bool) ([]BillingRate, error) {
	rows, err := q.db.QueryContext(ctx, listBillingRates, accountID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillingRate
	for rows.Next() {
		i, err := scanBillingRate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const clearDefaultBillingRate = `-- name: ClearDefaultBillingRate :exec
UPDATE billing_rates SET is_default = FALSE WHERE account_id = $1 AND is_default
`

func (q *Queries) ClearDefaultBillingRate(ctx context.Context, accountID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, clearDefaultBillingRate, accountID)
	return err
}

const setDefaultBillingRate = `-- name: SetDefaultBillingRate :one
UPDATE billing_rates SET is_default = TRUE
WHERE id = $1 AND account_id = $2 AND active
RETURNING ` + billingRateColumns

func (q *Queries) SetDefaultBillingRate(ctx context.Context, id, accountID uuid.UUID) (BillingRate, error) {
	return scanBillingRate(q.db.QueryRowContext(ctx, setDefaultBillingRate, id, accountID))
}

const deactivateBillingRate = `-- name: DeactivateBillingRate :one
UPDATE billing_rates SET active = FALSE, is_default = FALSE
WHERE id = $1 AND account_id = $2
RETURNING ` + billingRateColumns

func (q *Queries) DeactivateBillingRate(ctx context.Context, id, accountID uuid.UUID) (BillingRate, error) {
	return scanBillingRate(q.db.QueryRowContext(ctx, deactivateBillingRate, id, accountID))
}

