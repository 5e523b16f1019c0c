package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commentmap/internal/commentservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *commentservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	dh := NewDocumentHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Stateless enrichment and resolution.
	r.Post("/enrich", h.Enrich)
	r.Get("/nodes/{id}/hierarchy", h.ResolveNode)

	// Indexed comments.
	r.Get("/comments", h.ListComments)
	r.Get("/threads/{id}", h.Thread)
	r.Get("/frames", h.Frames)
	r.Get("/search", h.Search)

	// Inbox batches.
	r.Get("/batches", h.ListBatches)
	r.Get("/batches/{name}", h.GetBatch)
	r.Put("/batches/{name}", h.PutBatch)
	r.Delete("/batches/{name}", h.DeleteBatch)

	// Design document.
	r.Get("/document", dh.Summary)
	r.Post("/document", dh.Upload)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
