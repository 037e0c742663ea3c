package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/launchlog/launchlog-go/internal/service"
)

const maxBodyBytes = 1 << 20 // 1MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeBody decodes a JSON request body into dst. On failure it writes the
// error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// writeError maps service errors onto status codes. Anything unexpected is
// logged and answered with 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, service.ErrDuplicateUser):
		writeJSON(w, http.StatusBadRequest, errorResponse("User already exists"))
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse("Invalid credentials"))
	case errors.Is(err, service.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse("User not found"))
	case errors.Is(err, service.ErrCannotDeleteAdmin):
		writeJSON(w, http.StatusForbidden, errorResponse("Cannot delete admin users"))
	default:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
