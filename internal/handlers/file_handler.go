package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// uploads are capped at 512 MiB of multipart form memory+spill
const maxUploadBytes = 512 << 20

// FileHandler handles slide uploads
type FileHandler struct {
	slides interfaces.SlideService
	users  interfaces.UserService
	logger arbor.ILogger
}

// NewFileHandler creates a new file handler
func NewFileHandler(slides interfaces.SlideService, users interfaces.UserService, logger arbor.ILogger) *FileHandler {
	return &FileHandler{
		slides: slides,
		users:  users,
		logger: logger,
	}
}

// UploadHandler handles POST /api/files/upload. Expects a multipart form
// with a "file" part and a "user_id" field.
func (h *FileHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	registered, err := h.users.IsRegistered(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !registered {
		WriteError(w, http.StatusBadRequest, "user not registered: "+userID)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "file part is required: "+err.Error())
		return
	}
	defer file.Close()

	slide, err := h.slides.SaveUpload(r.Context(), userID, header.Filename, file)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("filename", header.Filename).Msg("Slide upload failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().
		Str("slide_id", slide.SlideID).
		Str("user_id", userID).
		Int("size", int(slide.SizeBytes)).
		Msg("Slide uploaded")
	WriteJSON(w, http.StatusCreated, slide)
}
