package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const userColumns = `id, account_id, username, email, role, created_at`

func scanUser(row interface{ Scan(dest ...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.AccountID,
		&i.Username,
		&i.Email,
		&i.Role,
		&i.CreatedAt,
	)
	return i, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (account_id, username, email, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

type CreateUserParams struct {
	AccountID uuid.UUID
	Username  string
	Email     string
	Role      string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.AccountID,
		arg.Username,
		arg.Email,
		arg.Role,
	)
	return scanUser(row)
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const getUserByUsername = `-- name: GetUserByUsername :one
SELECT ` + userColumns + ` FROM users WHERE username = $1
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const listUsersByAccount = `-- name: ListUsersByAccount :many
SELECT ` + userColumns + ` FROM users WHERE account_id = $1 ORDER BY username
`

func (q *Queries) ListUsersByAccount(ctx context.Context, accountID uuid.UUID) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsersByAccount, accountID)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

const updateUser = `-- name: UpdateUser :one
UPDATE users SET username = $2, email = $3, role = $4
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserParams struct {
	ID       uuid.UUID
	Username string
	Email    string
	Role     string
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, updateUser,
		arg.ID,
		arg.Username,
		arg.Email,
		arg.Role,
	)
	return scanUser(row)
}

const deleteUser = `-- name: DeleteUser :exec
DELETE FROM users WHERE id = $1
`

func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteUser, id)
	return err
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
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
