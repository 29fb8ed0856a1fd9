package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the channel the timer_outbox insert trigger notifies on.
const NotifyChannel = "timer_outbox_events"

type RelayConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int32
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// RelayStore is the slice of the outbox App the relay needs.
type RelayStore interface {
	GetEventByID(ctx context.Context, eventID uuid.UUID) (*worker.OutboxEvent, error)
	FetchUnsentEvents(ctx context.Context, limit int32) ([]worker.OutboxEvent, error)
	MarkEventSent(ctx context.Context, eventID uuid.UUID) error
	PendingCount(ctx context.Context) (int64, error)
}

// Relay moves outbox rows to the event publisher. Each row is marked sent
// only after the publisher accepted it; the publisher dedupes on event id,
// so a crash between publish and mark yields a duplicate the stream drops.
type Relay struct {
	store     RelayStore
	publisher worker.EventPublisher
	metrics   MetricsCollector
	clock     clockwork.Clock
	cfg       RelayConfig

	mu        sync.Mutex
	processed uint64
	lastEvent time.Time
	running   bool
}

func NewRelay(store RelayStore, publisher worker.EventPublisher, metrics MetricsCollector, clock clockwork.Clock, cfg RelayConfig) *Relay {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
		cfg:       cfg,
	}
}

// Stats returns the number of events relayed and when the last one went out.
func (r *Relay) Stats() (uint64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.lastEvent
}

// Running reports whether a listener loop is currently driving the relay.
func (r *Relay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Relay) setRunning(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

// HandleNotification relays the event whose id arrived as a notification payload.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.store.GetEventByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// Already relayed by the fallback poll.
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	if err := r.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// ProcessUnsent relays one batch of unsent events, oldest first.
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	start := r.clock.Now()

	unsent, err := r.store.FetchUnsentEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	sent := 0
	for _, event := range unsent {
		if err := r.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to relay event")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		sent++
	}

	r.metrics.RecordBatchProcessed(sent, r.clock.Since(start))
	if pending, err := r.store.PendingCount(ctx); err == nil {
		r.metrics.RecordOutboxLag(int(pending))
	}
	return sent, nil
}

func (r *Relay) publishWithRetry(ctx context.Context, event worker.OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(delay):
			}
		}

		start := r.clock.Now()
		err := r.publisher.Publish(ctx, event)
		r.metrics.RecordPublishAttempt(event.EventType, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if err := r.store.MarkEventSent(ctx, event.ID); err != nil {
			return err
		}
		r.metrics.RecordEventProcessed(event.EventType, true, r.clock.Since(start))

		r.mu.Lock()
		r.processed++
		r.lastEvent = r.clock.Now()
		r.mu.Unlock()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	r.metrics.RecordEventProcessed(event.EventType, false, 0)
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
