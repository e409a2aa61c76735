package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/orbit/internal/index"
	"github.com/starford/orbit/internal/orbit"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(engine *orbit.Engine, idx index.RelationIndex, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(engine, idx)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Taxonomy and resolution.
	r.Get("/categories", h.ListCategories)
	r.Get("/resolve", h.ResolveGroup)

	// Reconciliation.
	r.Post("/process", h.Process)
	r.Post("/promote", h.Promote)
	r.Get("/audit", h.Audit)

	// Relationship graph.
	r.Get("/graph", h.Graph)
	r.Get("/groupings/{name}/orbiters", h.Orbiters)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
