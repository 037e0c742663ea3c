package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/launchlog/launchlog-go/internal/middleware"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/service"
)

// UserDataHandler serves the per-user aggregate. The owner is the
// authenticated user, or the default owner for anonymous requests.
type UserDataHandler struct {
	service *service.UserDataService
	logger  *slog.Logger
}

// NewUserDataHandler creates a new UserDataHandler.
func NewUserDataHandler(svc *service.UserDataService, logger *slog.Logger) *UserDataHandler {
	return &UserDataHandler{service: svc, logger: logger}
}

// HandleGet handles GET /api/user-data requests.
func (h *UserDataHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.GetUserData(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleSaveTimerSession handles POST /api/timer-sessions requests.
func (h *UserDataHandler) HandleSaveTimerSession(w http.ResponseWriter, r *http.Request) {
	var req model.TimerSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.SaveTimerSession(r.Context(), middleware.UserIDFromContext(r.Context()), req.Session)
	h.reply(w, r, res, err)
}

// HandleUpdateTasks handles PUT /api/tasks requests.
func (h *UserDataHandler) HandleUpdateTasks(w http.ResponseWriter, r *http.Request) {
	var req model.TasksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.UpdateTasks(r.Context(), middleware.UserIDFromContext(r.Context()), req.Tasks)
	h.reply(w, r, res, err)
}

// HandleSaveJob handles POST /api/jobs requests.
func (h *UserDataHandler) HandleSaveJob(w http.ResponseWriter, r *http.Request) {
	var req model.JobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.SaveJob(r.Context(), middleware.UserIDFromContext(r.Context()), req.Job)
	h.reply(w, r, res, err)
}

// HandleUpdateJob handles PUT /api/jobs/{jobId} requests.
func (h *UserDataHandler) HandleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	jobID := chi.URLParam(r, "jobId")
	res, err := h.service.UpdateJob(r.Context(), middleware.UserIDFromContext(r.Context()), jobID, req.UpdatedJob)
	h.reply(w, r, res, err)
}

// HandleDeleteJob handles DELETE /api/jobs/{jobId} requests.
func (h *UserDataHandler) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	res, err := h.service.DeleteJob(r.Context(), middleware.UserIDFromContext(r.Context()), jobID)
	h.reply(w, r, res, err)
}

// HandleUpdateDashboard handles PUT /api/dashboard requests.
func (h *UserDataHandler) HandleUpdateDashboard(w http.ResponseWriter, r *http.Request) {
	var req model.DashboardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.UpdateDashboard(r.Context(), middleware.UserIDFromContext(r.Context()), req.DashboardData)
	h.reply(w, r, res, err)
}

// HandleReset handles DELETE /api/reset requests.
func (h *UserDataHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reset(r.Context(), middleware.UserIDFromContext(r.Context()))
	h.reply(w, r, res, err)
}

func (h *UserDataHandler) reply(w http.ResponseWriter, r *http.Request, res model.WriteResult, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
