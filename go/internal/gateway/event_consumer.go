package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
)

type JetStreamConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int
	// SkipOriginDevice keeps an event from echoing back to the device that caused it.
	SkipOriginDevice bool
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:    "TIMER_EVENTS",
		ConsumerName:  "timer-gateway",
		SubjectFilter: "timers.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// Broadcaster delivers feed events to an owner's open connections.
type Broadcaster interface {
	BroadcastToOwner(ownerID uuid.UUID, event *FeedEvent, skipDevice string)
}

// EventConsumer reads relayed timer events from JetStream and hands them to
// the connection manager.
type EventConsumer struct {
	broadcaster Broadcaster
	js          jetstream.JetStream
	consumer    jetstream.Consumer
	config      JetStreamConsumerConfig
}

func NewEventConsumer(ctx context.Context, broadcaster Broadcaster, js jetstream.JetStream, config JetStreamConsumerConfig) (*EventConsumer, error) {
	ec := &EventConsumer{
		broadcaster: broadcaster,
		js:          js,
		config:      config,
	}
	if err := ec.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Timer gateway websocket consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes until ctx is canceled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.Dispatch(msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("dropping undeliverable message")
				// A malformed envelope will never parse; do not redeliver it.
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// Dispatch decodes one relayed envelope and broadcasts it to the owner's feed.
func (ec *EventConsumer) Dispatch(data []byte) error {
	var envelope worker.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	eventType, err := ParseEventType(envelope.EventType)
	if err != nil {
		return err
	}
	if envelope.OwnerID == uuid.Nil {
		return fmt.Errorf("event %s has no owner", envelope.EventID)
	}

	feed := &FeedEvent{
		ID:        envelope.EventID.String(),
		OwnerID:   envelope.OwnerID.String(),
		TimerID:   envelope.TimerID.String(),
		Type:      eventType,
		Timestamp: envelope.Timestamp,
		Data:      envelope.Payload,
	}

	skip := ""
	if ec.config.SkipOriginDevice {
		var payload models.TimerEvent
		if err := json.Unmarshal(envelope.Payload, &payload); err == nil {
			skip = payload.DeviceID
		}
	}

	ec.broadcaster.BroadcastToOwner(envelope.OwnerID, feed, skip)

	log.Debug().
		Str("event_id", feed.ID).
		Str("owner_id", feed.OwnerID).
		Str("event_type", string(eventType)).
		Msg("event handed to websocket clients")
	return nil
}

// GetConsumerInfo returns information about the consumer
func (ec *EventConsumer) GetConsumerInfo(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}
