package main

import (
	"context"
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/outbox"
	outboxdb "github.com/mcdev12/servicedesk/go/internal/outbox/db"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
	"github.com/mcdev12/servicedesk/go/internal/rates"
	"github.com/mcdev12/servicedesk/go/internal/timers"
	"github.com/mcdev12/servicedesk/go/internal/timers/cache"
	"github.com/mcdev12/servicedesk/go/internal/users"
	usersdb "github.com/mcdev12/servicedesk/go/internal/users/db"
)

type Services struct {
	Timers *timers.Service
	Users  *users.Service
	Rates  *rates.Service
	Tokens *auth.TokenProvider

	UsersApp *users.App

	nc *nats.Conn
}

func setupServices(ctx context.Context, database *sql.DB, config *Config) *Services {
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	// Users
	userQueries := usersdb.New(database)
	userRepo := users.NewRepository(userQueries)
	userApp := users.NewApp(userRepo)
	authorizer := auth.NewRoleAuthorizer(userApp)
	userService := users.NewService(userApp, authorizer)

	// Rates
	rateRepo := rates.NewRepository(database)
	rateApp := rates.NewApp(rateRepo)
	rateService := rates.NewService(rateApp, authorizer)

	// Outbox (event sink for timer mutations)
	outboxApp := outbox.NewApp(outbox.NewRepository(outboxdb.New(database)))

	// Snapshot cache
	snapshots, nc := setupCache(ctx, config, clock)

	// Timers
	timerRepo := timers.NewPostgresRepository(database)
	timerApp := timers.NewApp(timers.Dependencies{
		Repo:       timerRepo,
		Authorizer: authorizer,
		Rates:      rateApp,
		Cache:      snapshots,
		Events:     outboxApp,
		Clock:      clock,
		Rounding:   config.Rounding,
	})
	timerService := timers.NewService(timerApp)

	return &Services{
		Timers:   timerService,
		Users:    userService,
		Rates:    rateService,
		Tokens:   auth.NewTokenProvider([]byte(config.Auth.JWTSecret), config.Auth.Issuer, config.Auth.TokenTTL, clock),
		UsersApp: userApp,
		nc:       nc,
	}
}

// setupCache uses the JetStream KV bucket when NATS is reachable and falls
// back to a process-local cache otherwise.
func setupCache(ctx context.Context, config *Config, clock clockwork.Clock) (timers.SnapshotCache, *nats.Conn) {
	if config.NatsURL == "" {
		log.Warn().Msg("NATS_URL not set, using in-memory snapshot cache")
		return cache.NewMemory(config.Cache.TTL, clock), nil
	}

	jsCfg := worker.DefaultJetStreamConfig()
	jsCfg.URL = config.NatsURL
	nc, err := worker.Connect(jsCfg)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, using in-memory snapshot cache")
		return cache.NewMemory(config.Cache.TTL, clock), nil
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		log.Warn().Err(err).Msg("JetStream unavailable, using in-memory snapshot cache")
		return cache.NewMemory(config.Cache.TTL, clock), nil
	}
	kv, err := cache.NewKVCache(ctx, js, config.Cache)
	if err != nil {
		nc.Close()
		log.Warn().Err(err).Msg("snapshot bucket unavailable, using in-memory snapshot cache")
		return cache.NewMemory(config.Cache.TTL, clock), nil
	}
	return kv, nc
}

func (s *Services) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
