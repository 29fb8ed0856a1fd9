package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans timer events out to every websocket an owner has
// open, one pool per owner.
type ConnectionManager struct {
	ownerConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection is one websocket subscribed to an owner's timer feed.
type Connection struct {
	ID       string
	CallerID uuid.UUID
	OwnerID  uuid.UUID
	DeviceID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	closeOnce   sync.Once
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

type BroadcastMessage struct {
	OwnerID uuid.UUID
	Event   *FeedEvent
	// SkipDevice suppresses delivery to the device that caused the event.
	SkipDevice string
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		ownerConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is canceled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request and subscribes it to ownerID's feed.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, callerID, ownerID uuid.UUID, deviceID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		CallerID:    callerID,
		OwnerID:     ownerID,
		DeviceID:    deviceID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("caller_id", callerID.String()).
		Str("owner_id", ownerID.String()).
		Str("device_id", deviceID).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.ownerConnections[conn.OwnerID] == nil {
		cm.ownerConnections[conn.OwnerID] = make(map[*Connection]bool)
	}
	cm.ownerConnections[conn.OwnerID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("owner_id", conn.OwnerID.String()).
		Int("total_connections", len(cm.ownerConnections[conn.OwnerID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.ownerConnections[conn.OwnerID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.ownerConnections, conn.OwnerID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("owner_id", conn.OwnerID.String()).
		Msg("connection unregistered")
}

// BroadcastToOwner queues event for every connection watching ownerID.
func (cm *ConnectionManager) BroadcastToOwner(ownerID uuid.UUID, event *FeedEvent, skipDevice string) {
	select {
	case cm.broadcastCh <- BroadcastMessage{OwnerID: ownerID, Event: event, SkipDevice: skipDevice}:
	default:
		log.Warn().Str("owner_id", ownerID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so unregisterConnection cannot close
	// a Send channel mid-broadcast.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for conn := range cm.ownerConnections[message.OwnerID] {
		if message.SkipDevice != "" && conn.DeviceID == message.SkipDevice {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("owner_id", conn.OwnerID.String()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.close()
	}

	if delivered > 0 {
		log.Debug().
			Str("event_type", string(message.Event.Type)).
			Str("owner_id", message.OwnerID.String()).
			Int("connections", delivered).
			Msg("event broadcasted")
	}
}

// ConnectionStats summarizes open websocket connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveOwners     int            `json:"active_owners"`
	OwnerConnections map[string]int `json:"owner_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveOwners:     len(cm.ownerConnections),
		OwnerConnections: make(map[string]int, len(cm.ownerConnections)),
	}
	for ownerID, connections := range cm.ownerConnections {
		stats.TotalConnections += len(connections)
		stats.OwnerConnections[ownerID.String()] = len(connections)
	}
	return stats
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only services control frames; clients send commands over the
// TimerService, not the feed.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
