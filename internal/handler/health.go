package handler

import (
	"net/http"

	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
)

// HealthHandler reports liveness and the active storage backend.
type HealthHandler struct {
	health *repository.Health
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(h *repository.Health) *HealthHandler {
	return &HealthHandler{health: h}
}

// HandleHealth handles GET /health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if h.health.Connected() {
		storage = "durable"
	}
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:  "OK",
		Message: "LaunchLog API is running",
		Storage: storage,
	})
}
