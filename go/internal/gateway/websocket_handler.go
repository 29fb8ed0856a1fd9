package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// Authorizer decides whether a caller may watch another user's timers.
type Authorizer interface {
	CanActFor(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (bool, error)
}

type WebSocketHandler struct {
	connectionManager *ConnectionManager
	authorizer        Authorizer
}

func NewWebSocketHandler(cm *ConnectionManager, authorizer Authorizer) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		authorizer:        authorizer,
	}
}

// HandleTimerFeed handles GET /ws/timers?owner_id=&device_id=. The owner
// defaults to the authenticated caller.
func (h *WebSocketHandler) HandleTimerFeed(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ownerID, status, msg := resolveOwner(r.Context(), h.authorizer, caller, r.URL.Query().Get("owner_id"))
	if status != 0 {
		http.Error(w, msg, status)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if err := h.connectionManager.UpgradeConnection(w, r, caller.UserID, ownerID, deviceID); err != nil {
		// the upgrader has already written an error response
		log.Error().
			Err(err).
			Str("owner_id", ownerID.String()).
			Str("caller_id", caller.UserID.String()).
			Msg("failed to upgrade websocket connection")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/timers", h.HandleTimerFeed)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

// resolveOwner parses the owner query parameter and checks the caller may
// see that owner's timers. A zero status means the owner is allowed.
func resolveOwner(ctx context.Context, authorizer Authorizer, caller models.Caller, raw string) (uuid.UUID, int, string) {
	if raw == "" {
		return caller.UserID, 0, ""
	}
	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, http.StatusBadRequest, "invalid owner_id format"
	}
	if ownerID == caller.UserID {
		return ownerID, 0, ""
	}
	allowed, err := authorizer.CanActFor(ctx, caller, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID.String()).Msg("authorization lookup failed")
		return uuid.Nil, http.StatusInternalServerError, "authorization lookup failed"
	}
	if !allowed {
		return uuid.Nil, http.StatusForbidden, "not allowed to watch this user's timers"
	}
	return ownerID, 0, ""
}
