package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/servicedesk/go/internal/dbconfig"
	"github.com/mcdev12/servicedesk/go/internal/outbox"
	outboxdb "github.com/mcdev12/servicedesk/go/internal/outbox/db"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
)

func main() {
	var (
		healthAddr = pflag.String("health-addr", ":8082", "address for /health and /metrics")
		fallback   = pflag.Duration("fallback-interval", 30*time.Second, "poll interval for missed notifications")
		debug      = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := dbconfig.NewConfigFromEnv()
	db, err := cfg.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	jsCfg := worker.DefaultJetStreamConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg.URL = url
	}
	publisher, err := worker.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer publisher.Close()

	relayCfg := outbox.DefaultRelayConfig()
	relayCfg.DatabaseURL = cfg.DSN()
	relayCfg.FallbackInterval = *fallback

	app := outbox.NewApp(outbox.NewRepository(outboxdb.New(db)))
	stats := outbox.NewStatsCollector()
	clock := clockwork.NewRealClock()
	relay := outbox.NewRelay(app, publisher, stats, clock, relayCfg)

	listener, err := outbox.NewListener(relay, relayCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	checker := outbox.NewRelayHealthChecker(relay, app, db, publisher.Conn(), clock, 2*time.Minute)
	mux := http.NewServeMux()
	mux.Handle("/health", checker)
	mux.Handle("/metrics", outbox.NewPrometheusExporter(checker, stats))
	srv := &http.Server{Addr: *healthAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		<-errCh
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
