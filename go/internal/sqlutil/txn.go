package sqlutil

import (
	"context"
	"database/sql"
)

// Run executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil) // BEGIN
	if err != nil {
		return err
	}
	q := newQueries(tx) // bind sqlc Queries to this tx
	if err := fn(q); err != nil {
		_ = tx.Rollback() // ROLLBACK
		return err
	}
	return tx.Commit() // COMMIT
}

// RunValue is Run for transactions that produce a value.
func RunValue[T, V any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) (V, error),
) (V, error) {
	var out V
	err := Run(ctx, db, newQueries, func(q *T) error {
		v, err := fn(q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return out, nil
}
