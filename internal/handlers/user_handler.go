package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// WorkerLauncher lets the handler start and stop per-user workers as users
// come and go at runtime.
type WorkerLauncher interface {
	Ensure(userID string)
	Remove(userID string)
}

// UserHandler handles user registration and removal
type UserHandler struct {
	users  interfaces.UserService
	slides interfaces.SlideService
	pool   WorkerLauncher
	logger arbor.ILogger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users interfaces.UserService, slides interfaces.SlideService, pool WorkerLauncher, logger arbor.ILogger) *UserHandler {
	return &UserHandler{
		users:  users,
		slides: slides,
		pool:   pool,
		logger: logger,
	}
}

type registerUserRequest struct {
	UserID string `json:"user_id" validate:"required,min=1,max=128"`
}

// RegisterHandler handles POST /api/users
func (h *UserHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.users.Register(r.Context(), req.UserID); err != nil {
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to register user")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.pool.Ensure(req.UserID)

	WriteJSON(w, http.StatusCreated, map[string]string{
		"status":  "success",
		"user_id": req.UserID,
	})
}

// ListHandler handles GET /api/users
func (h *UserHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	userIDs, err := h.users.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users": userIDs,
		"count": len(userIDs),
	})
}

// ItemHandler handles /api/users/{id} and /api/users/{id}/slides
func (h *UserHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r, "/api/users/")
	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.status(w, r, segments[0])
	case len(segments) == 1 && r.Method == http.MethodDelete:
		h.delete(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "slides" && r.Method == http.MethodGet:
		h.listSlides(w, r, segments[0])
	default:
		WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
	}
}

func (h *UserHandler) status(w http.ResponseWriter, r *http.Request, userID string) {
	registered, err := h.users.IsRegistered(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !registered {
		WriteError(w, http.StatusNotFound, "user not found: "+userID)
		return
	}
	status, err := h.users.Status(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"status":  status,
	})
}

func (h *UserHandler) delete(w http.ResponseWriter, r *http.Request, userID string) {
	deleted, err := h.users.Delete(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to delete user")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "user not found: "+userID)
		return
	}
	h.pool.Remove(userID)
	WriteSuccess(w, "user deleted: "+userID)
}

func (h *UserHandler) listSlides(w http.ResponseWriter, r *http.Request, userID string) {
	slides, err := h.slides.ListByUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"slides":  slides,
		"count":   len(slides),
	})
}
