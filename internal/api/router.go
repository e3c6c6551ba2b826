package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/labelservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *labelservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/vocabulary", h.Vocabulary)

	// Dataset file.
	r.Get("/dataset", h.ListRows)
	r.Get("/dataset/stats", h.Stats)
	r.Post("/dataset/scan", h.Scan)
	r.Post("/dataset/open", h.Open)

	// Labeling session.
	r.Get("/session", h.Session)
	r.Post("/session/select", h.Select)
	r.Post("/session/next", h.Next)
	r.Post("/session/prev", h.Prev)
	r.Put("/session/checked", h.SetChecked)
	r.Post("/session/toggle", h.Toggle)
	r.Post("/session/save", h.Save)
	r.Post("/session/stop", h.Stop)
	r.Get("/session/preview", h.Preview)

	r.Get("/images/*", ih.ServeFile)

	// Label history.
	r.Get("/history", h.History)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
