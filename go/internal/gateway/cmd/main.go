package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/dbconfig"
	"github.com/mcdev12/servicedesk/go/internal/gateway"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
	"github.com/mcdev12/servicedesk/go/internal/rates"
	"github.com/mcdev12/servicedesk/go/internal/timers"
	"github.com/mcdev12/servicedesk/go/internal/timers/cache"
	"github.com/mcdev12/servicedesk/go/internal/users"
	usersdb "github.com/mcdev12/servicedesk/go/internal/users/db"
)

func main() {
	var (
		port             = pflag.String("port", getEnv("GATEWAY_PORT", "8081"), "HTTP listen port")
		natsURL          = pflag.String("nats-url", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server URL")
		skipOriginDevice = pflag.Bool("skip-origin-device", false, "do not echo events to the device that caused them")
		debug            = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	jsCfg := worker.DefaultJetStreamConfig()
	jsCfg.URL = *natsURL
	nc, err := worker.Connect(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}
	// The relay normally owns the stream; creating it here lets the gateway start first.
	if err := worker.EnsureStream(ctx, js, jsCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure event stream")
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", *natsURL).
		Str("port", *port).
		Msg("starting timer gateway")

	clock := clockwork.NewRealClock()
	timerApp, authorizer := setupTimerApp(ctx, db, js, clock)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.JetStreamConfig.StreamName = jsCfg.StreamName
	gatewayConfig.JetStreamConfig.SkipOriginDevice = *skipOriginDevice

	gatewayService, err := gateway.NewService(ctx, gatewayConfig, js, timerApp, authorizer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()

	// Register gateway routes (WebSocket and REST)
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":     "timer-gateway",
			"connections": stats.TotalConnections,
			"owners":      stats.ActiveOwners,
		})
	})

	tokens := auth.NewTokenProvider([]byte(secret), getEnv("JWT_ISSUER", "servicedesk"), 0, clock)
	public := map[string]bool{"/health": true, "/info": true}
	handler := cors.AllowAll().Handler(auth.Middleware(tokens, public, mux))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", *port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start gateway service (includes event consumer and connection manager)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("timer gateway shutdown complete")
}

// setupTimerApp builds the read side the gateway needs for /api/timers/active.
// The gateway never mutates timers, so events go nowhere.
func setupTimerApp(ctx context.Context, db *sql.DB, js jetstream.JetStream, clock clockwork.Clock) (*timers.App, *auth.RoleAuthorizer) {
	userApp := users.NewApp(users.NewRepository(usersdb.New(db)))
	authorizer := auth.NewRoleAuthorizer(userApp)
	rateApp := rates.NewApp(rates.NewRepository(db))

	var snapshots timers.SnapshotCache
	kv, err := cache.NewKVCache(ctx, js, cache.DefaultKVConfig())
	if err != nil {
		log.Warn().Err(err).Msg("snapshot bucket unavailable, reading from the store only")
		snapshots = cache.Noop{}
	} else {
		snapshots = kv
	}

	return timers.NewApp(timers.Dependencies{
		Repo:       timers.NewPostgresRepository(db),
		Authorizer: authorizer,
		Rates:      rateApp,
		Cache:      snapshots,
		Clock:      clock,
		Rounding:   timers.DefaultRoundingPolicy(),
	}), authorizer
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
