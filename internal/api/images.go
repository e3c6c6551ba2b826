package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/labelservice"
)

// ImageHandler serves the raw image files of the dataset directory.
type ImageHandler struct {
	svc *labelservice.Service
}

// NewImageHandler creates a handler backed by svc.
func NewImageHandler(svc *labelservice.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

// imagePath extracts the image path from the URL (everything after
// /api/images/). Supports encoded slashes (e.g. fire%2Fa.png).
func imagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ServeFile handles GET /api/images/*.
//
//	@Summary		Raw image file
//	@Tags			images
//	@Param			path	path	string	true	"Image path relative to the dataset directory"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{path} [get]
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	rel := imagePath(r)
	if rel == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	abs, err := h.svc.ImageFile(rel)
	if err != nil {
		writeError(w, "serve image", err)
		return
	}
	http.ServeFile(w, r, abs)
}
