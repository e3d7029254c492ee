package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// SchedulerHandler exposes the admission loop's control surface
type SchedulerHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// StartHandler handles POST /api/scheduler/start
func (h *SchedulerHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.scheduler.Start(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info().Msg("Scheduler started via API")
	WriteJSON(w, http.StatusOK, map[string]string{"state": "running"})
}

// PauseHandler handles POST /api/scheduler/pause
func (h *SchedulerHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.scheduler.Pause(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info().Msg("Scheduler paused via API")
	WriteJSON(w, http.StatusOK, map[string]string{"state": "paused"})
}

// StateHandler handles GET /api/scheduler/state
func (h *SchedulerHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduler.State(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"state": state})
}

// GlobalStatusHandler handles GET /api/scheduler/global_status
func (h *SchedulerHandler) GlobalStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.GlobalStatus(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
