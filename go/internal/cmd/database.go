package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcdev12/servicedesk/go/internal/dbconfig"
	"github.com/mcdev12/servicedesk/go/internal/migrations"
)

func setupDatabase(ctx context.Context, dbConfig dbconfig.Config) (*sql.DB, error) {
	database, err := dbConfig.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	return database, nil
}

// runMigrations applies the embedded schema in the given direction ("up" or "down").
func runMigrations(dbConfig dbconfig.Config, direction string) error {
	if err := migrations.Run(dbConfig.DSN(), direction); err != nil {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}
	return nil
}
