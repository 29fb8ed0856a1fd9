package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service is the timer gateway: websocket feed, state endpoint and the
// JetStream consumer feeding them.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(ctx context.Context, config Config, js jetstream.JetStream, stateProvider StateProvider, authorizer Authorizer) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	eventConsumer, err := NewEventConsumer(ctx, connectionManager, js, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, authorizer),
		eventConsumer:     eventConsumer,
		stateHandler:      NewStateHandler(stateProvider),
	}, nil
}

// Start runs the connection manager and consumer until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting timer gateway service")

	go s.connectionManager.Start(ctx)

	err := s.eventConsumer.Start(ctx)
	log.Info().Msg("timer gateway service stopped")
	return err
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("timer gateway routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
