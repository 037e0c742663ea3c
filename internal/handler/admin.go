package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/launchlog/launchlog-go/internal/service"
)

// AdminHandler serves the admin panel. Routes must be guarded by
// middleware.RequireRole(model.RoleAdmin).
type AdminHandler struct {
	service *service.AdminService
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// HandleListUsers handles GET /api/admin/users requests.
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleStats handles GET /api/admin/stats requests.
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleDeleteUser handles DELETE /api/admin/users/{userId} requests.
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
