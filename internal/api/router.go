package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/workshopwatch/internal/itemservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// Local file overlay sources are only accepted when auth is enabled.
func NewRouter(svc *itemservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, WithFileSources(authEnabled))

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Containers and their items.
	r.Get("/containers", h.ListContainers)
	r.Post("/containers/reload", h.ReloadContainers)
	r.Route("/containers/{id}", func(r chi.Router) {
		r.Get("/", h.GetContainer)
		r.Get("/items", h.ListItems)
		r.Post("/rescan", h.RescanContainer)
		r.Post("/fetch", h.StartFetch)

		// Overlay table.
		r.Get("/overlay", h.GetOverlay)
		r.Put("/overlay/source", h.SetOverlaySource)
		r.Put("/overlay/columns", h.SetOverlayColumns)
		r.Get("/overlay/rows", h.OverlayRows)
		r.Post("/overlay/reload", h.ReloadOverlay)
	})

	// Fetch state.
	r.Get("/fetch", h.FetchState)

	// Status colours.
	r.Get("/status-colors", h.ListStatusColors)
	r.Put("/status-colors/{label}", h.SetStatusColor)
	r.Delete("/status-colors/{label}", h.DeleteStatusColor)

	// Settings.
	r.Get("/settings/root", h.GetRoot)
	r.Put("/settings/root", h.SetRoot)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
