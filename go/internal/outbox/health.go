package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxPendingEvents is the backlog size above which health reports a warning.
const maxPendingEvents = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int64     `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnStatus is satisfied by *nats.Conn.
type ConnStatus interface {
	IsConnected() bool
}

type RelayHealthChecker struct {
	relay     *Relay
	store     RelayStore
	db        Pinger
	nats      ConnStatus
	clock     clockwork.Clock
	threshold time.Duration // How long without events before unhealthy
}

func NewRelayHealthChecker(relay *Relay, store RelayStore, db Pinger, nats ConnStatus, clock clockwork.Clock, threshold time.Duration) *RelayHealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RelayHealthChecker{
		relay:     relay,
		store:     store,
		db:        db,
		nats:      nats,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *RelayHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.PendingCount(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > maxPendingEvents {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// A backlog that is not draining means the relay is stuck.
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		since := h.clock.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *RelayHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// PrometheusExporter renders health and relay counters in the Prometheus
// text exposition format.
type PrometheusExporter struct {
	checker HealthChecker
	stats   *StatsCollector
}

func NewPrometheusExporter(checker HealthChecker, stats *StatsCollector) *PrometheusExporter {
	return &PrometheusExporter{checker: checker, stats: stats}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	out := fmt.Sprintf(`# HELP outbox_healthy Whether the outbox relay is healthy
# TYPE outbox_healthy gauge
outbox_healthy %d

# HELP outbox_events_processed_total Total number of events relayed
# TYPE outbox_events_processed_total counter
outbox_events_processed_total %d

# HELP outbox_pending_events Current number of pending events
# TYPE outbox_pending_events gauge
outbox_pending_events %d

# HELP outbox_database_connected Whether database is connected
# TYPE outbox_database_connected gauge
outbox_database_connected %d

# HELP outbox_nats_connected Whether NATS is connected
# TYPE outbox_nats_connected gauge
outbox_nats_connected %d

# HELP outbox_listener_active Whether the listener is active
# TYPE outbox_listener_active gauge
outbox_listener_active %d

# HELP outbox_last_event_timestamp Unix timestamp of last relayed event
# TYPE outbox_last_event_timestamp gauge
outbox_last_event_timestamp %d
`,
		boolGauge(status.Healthy),
		status.EventsProcessed,
		status.PendingEvents,
		boolGauge(status.DatabaseConnected),
		boolGauge(status.NATSConnected),
		boolGauge(status.ListenerActive),
		status.LastEventTime.Unix(),
	)

	if e.stats != nil {
		snap := e.stats.Snapshot()
		out += fmt.Sprintf(`
# HELP outbox_publish_retries_total Publish attempts beyond the first
# TYPE outbox_publish_retries_total counter
outbox_publish_retries_total %d
`, snap.Retries)
	}
	return out
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, e.Export(r.Context()))
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
