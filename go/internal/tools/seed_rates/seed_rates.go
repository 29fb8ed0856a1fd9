package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mcdev12/servicedesk/go/internal/dbconfig"
)

// Rate mirrors an entry in the billing rates JSON file
type Rate struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	HourlyCents int64     `json:"hourly_cents"`
	IsDefault   bool      `json:"is_default"`
	Active      bool      `json:"active"`
}

func main() {
	file := pflag.String("file", "go/internal/assets/billing_rates.json", "billing rates JSON file")
	pflag.Parse()

	_ = godotenv.Load()

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var rates []Rate
	if err := json.Unmarshal(data, &rates); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count. Existing (account_id, name) pairs are left alone.
	var (
		total    = len(rates)
		inserted int
		skipped  int
		errs     int
	)

	for _, r := range rates {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.HourlyCents < 0 || r.Name == "" {
			fmt.Fprintf(os.Stderr, "skipping invalid rate %q\n", r.Name)
			errs++
			continue
		}
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO billing_rates (
              id, account_id, name, hourly_cents, is_default, active
            ) VALUES (
              $1,$2,$3,$4,$5,$6
            )
            ON CONFLICT (account_id, name) DO NOTHING
        `,
			r.ID, r.AccountID, r.Name, r.HourlyCents, r.IsDefault, r.Active,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting rate %s: %v\n", r.Name, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Billing rates seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
