package handlers

import (
	"context"
	"net/http"
	"time"

	"dailyalchemy/internal/logger"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db  Pinger
	log *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, log: log}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.log.Warn("Health check failed", "error", err.Error())
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
