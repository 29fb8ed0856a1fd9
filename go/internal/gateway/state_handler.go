package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/timers"
)

// StateProvider returns the authoritative active-timer view clients load
// before subscribing to the feed.
type StateProvider interface {
	CurrentActive(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (*timers.ActiveSummary, error)
}

type StateHandler struct {
	stateProvider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetActive handles GET /api/timers/active?owner_id=
func (h *StateHandler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ownerID := caller.UserID
	if raw := r.URL.Query().Get("owner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid owner_id format", http.StatusBadRequest)
			return
		}
		ownerID = id
	}

	summary, err := h.stateProvider.CurrentActive(r.Context(), caller, ownerID)
	if err != nil {
		var authzErr *timers.AuthorizationError
		switch {
		case errors.As(err, &authzErr):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, timers.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Error().Err(err).Str("owner_id", ownerID.String()).Msg("failed to get active timers")
			http.Error(w, "failed to get active timers", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		log.Error().Err(err).Msg("failed to encode active timers response")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timers/active", h.HandleGetActive)
}
