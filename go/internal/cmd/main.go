package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/servicedesk/go/internal/dbconfig"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

func main() {
	var (
		configPath = pflag.String("config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
		migrate    = pflag.String("migrate", "", "run migrations (up|down) and exit")
		issueToken = pflag.String("issue-token", "", "print an access token for the given user id and exit")
	)
	pflag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	dbConfig := dbconfig.NewConfigFromEnv()
	if *migrate != "" {
		if err := runMigrations(dbConfig, *migrate); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Str("direction", *migrate).Msg("migrations applied")
		return
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", config.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	services := setupServices(ctx, database, config)
	defer services.Close()

	if *issueToken != "" {
		if err := printToken(ctx, services, *issueToken); err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		return
	}

	server := setupServer(services, config)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting servicedesk API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

// printToken is the operator path for minting a token for an existing user.
func printToken(ctx context.Context, services *Services, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	user, err := services.UsersApp.GetUser(ctx, id)
	if err != nil {
		return err
	}
	token, expiresAt, err := services.Tokens.Issue(models.Caller{
		UserID:    user.ID,
		AccountID: user.AccountID,
		Role:      user.Role,
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	log.Info().Str("user_id", user.ID.String()).Time("expires_at", expiresAt).Msg("issued token")
	return nil
}
