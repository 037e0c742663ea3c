package handler

import (
	"log/slog"
	"net/http"

	"github.com/launchlog/launchlog-go/internal/middleware"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// HandleRegister handles POST /api/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /api/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleMe handles GET /api/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("Access token required"))
		return
	}

	resp, err := h.service.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
