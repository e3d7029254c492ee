package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - live global status stream
	mux.HandleFunc("/ws/status", s.app.WSHandler.HandleStatus)

	// API routes - Users
	mux.HandleFunc("/api/users", s.handleUsersRoute)
	mux.HandleFunc("/api/users/", s.app.UserHandler.ItemHandler) // GET/DELETE /{id}, GET /{id}/slides

	// API routes - Workflows (CRUD, branches, job specs, execution)
	mux.HandleFunc("/api/workflows", s.handleWorkflowsRoute)
	mux.HandleFunc("/api/workflows/", s.app.WorkflowHandler.ItemHandler)

	// API routes - Jobs (read-only inspection)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.ItemHandler)

	// API routes - Scheduler control
	mux.HandleFunc("/api/scheduler/start", s.app.SchedulerHandler.StartHandler)
	mux.HandleFunc("/api/scheduler/pause", s.app.SchedulerHandler.PauseHandler)
	mux.HandleFunc("/api/scheduler/state", s.app.SchedulerHandler.StateHandler)
	mux.HandleFunc("/api/scheduler/global_status", s.app.SchedulerHandler.GlobalStatusHandler)

	// API routes - Files
	mux.HandleFunc("/api/files/upload", s.app.FileHandler.UploadHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleUsersRoute routes the user collection endpoint
func (s *Server) handleUsersRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.UserHandler.ListHandler, s.app.UserHandler.RegisterHandler)
}

// handleWorkflowsRoute routes the workflow collection endpoint
func (s *Server) handleWorkflowsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.WorkflowHandler.ListHandler, s.app.WorkflowHandler.CreateHandler)
}
