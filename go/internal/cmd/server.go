package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/rates"
	"github.com/mcdev12/servicedesk/go/internal/timers"
	"github.com/mcdev12/servicedesk/go/internal/users"
)

const healthPath = "/health"

func setupServer(services *Services, config *Config) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Authenticate everything except the health check, then wrap with CORS
	public := map[string]bool{healthPath: true}
	handler := c.Handler(auth.Middleware(services.Tokens, public, mux))

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register timer service
	timerServicePath, timerServiceHandler := timers.NewTimerServiceHandler(services.Timers)
	mux.Handle(timerServicePath, timerServiceHandler)

	// Register user service
	userServicePath, userServiceHandler := users.NewUserServiceHandler(services.Users)
	mux.Handle(userServicePath, userServiceHandler)

	// Register rate service
	rateServicePath, rateServiceHandler := rates.NewRateServiceHandler(services.Rates)
	mux.Handle(rateServicePath, rateServiceHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
