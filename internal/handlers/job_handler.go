package handlers

import (
	"net/http"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// JobHandler serves read-only job instance inspection
type JobHandler struct {
	jobs interfaces.JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs interfaces.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// ItemHandler handles GET /api/jobs/{id}
func (h *JobHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	segments := PathSegments(r, "/api/jobs/")
	if len(segments) != 1 {
		WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
		return
	}
	jobID := segments[0]

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found: "+jobID)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
