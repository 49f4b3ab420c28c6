package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
)

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	store *redisstore.Client
}

func NewHealthHandler(store *redisstore.Client) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		// Readiness requires the ephemeral store; the rest degrades gracefully.
		if err := h.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
