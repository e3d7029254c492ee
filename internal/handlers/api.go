package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// APIHandler serves the system endpoints: health, version, API 404
type APIHandler struct {
	store interfaces.StateStore
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store interfaces.StateStore) *APIHandler {
	return &APIHandler{store: store}
}

// HealthHandler reports process and store health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	storeStatus := "ok"
	statusCode := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		storeStatus = err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, statusCode, map[string]interface{}{
		"status":  status,
		"store":   storeStatus,
		"version": common.GetVersion(),
	})
}

// VersionHandler reports build metadata
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// NotFoundHandler is the catch-all for unmatched API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}
