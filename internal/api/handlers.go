package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commentmap/internal/commentservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *commentservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *commentservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Enrich handles POST /api/enrich.
//
//	@Summary		Enrich comments against the loaded document without storing them
//	@Tags			enrich
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EnrichRequest	true	"Comments and optional context"
//	@Success		200		{object}	EnrichResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/enrich [post]
func (h *Handler) Enrich(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, EnrichResponse{
		Comments: h.svc.Enrich(r.Context(), req.Comments, req.Context),
	})
}

// ResolveNode handles GET /api/nodes/{id}/hierarchy.
//
//	@Summary		Resolve the frame and ancestor path of a node
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	models.HierarchyResult
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/hierarchy [get]
func (h *Handler) ResolveNode(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ResolveNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "resolve node", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListComments handles GET /api/comments.
//
//	@Summary		List enriched comments
//	@Tags			comments
//	@Produce		json
//	@Param			batch		query		string	false	"Batch name"
//	@Param			frame		query		string	false	"Top frame id"
//	@Param			thread		query		string	false	"Thread id"
//	@Param			replies		query		bool	false	"Only replies (true) or only top-level comments (false)"
//	@Param			ungrouped	query		bool	false	"Only comments without a frame"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	CommentListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/comments [get]
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	ungrouped, _ := strconv.ParseBool(q.Get("ungrouped"))
	query := CommentQuery{
		Batch:     q.Get("batch"),
		Frame:     q.Get("frame"),
		Thread:    q.Get("thread"),
		Replies:   q.Get("replies"),
		Ungrouped: ungrouped,
		Limit:     limit,
		Offset:    offset,
	}
	if err := query.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	comments, total, err := h.svc.ListComments(r.Context(), query.Filter())
	if err != nil {
		writeServiceError(w, "list comments", err)
		return
	}
	writeJSON(w, http.StatusOK, CommentListResponse{Comments: comments, Total: total})
}

// Thread handles GET /api/threads/{id}.
//
//	@Summary		Get a thread, top-level comment first
//	@Tags			comments
//	@Produce		json
//	@Param			id	path		string	true	"Thread id"
//	@Success		200	{object}	ThreadResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/threads/{id} [get]
func (h *Handler) Thread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	comments, err := h.svc.Thread(r.Context(), id)
	if err != nil {
		writeServiceError(w, "thread", err)
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{ThreadID: id, Comments: comments})
}

// Frames handles GET /api/frames.
//
//	@Summary		Comment counts grouped by top frame
//	@Tags			comments
//	@Produce		json
//	@Success		200	{object}	FramesResponse
//	@Security		BearerAuth
//	@Router			/frames [get]
func (h *Handler) Frames(w http.ResponseWriter, r *http.Request) {
	frames, err := h.svc.Frames(r.Context())
	if err != nil {
		writeServiceError(w, "frames", err)
		return
	}
	writeJSON(w, http.StatusOK, FramesResponse{Frames: frames})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across comments
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListBatches handles GET /api/batches.
//
//	@Summary		List indexed batches
//	@Tags			batches
//	@Produce		json
//	@Success		200	{object}	BatchListResponse
//	@Security		BearerAuth
//	@Router			/batches [get]
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.ListBatches(r.Context())
	if err != nil {
		writeServiceError(w, "list batches", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchListResponse{Batches: batches})
}

// GetBatch handles GET /api/batches/{name}.
//
//	@Summary		Get a batch with its enriched comments
//	@Tags			batches
//	@Produce		json
//	@Param			name	path		string	true	"Batch file name"
//	@Success		200		{object}	BatchDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batches/{name} [get]
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetBatch(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, "get batch", err)
		return
	}
	w.Header().Set("ETag", `"`+detail.Checksum+`"`)
	writeJSON(w, http.StatusOK, detail)
}

// PutBatch handles PUT /api/batches/{name}.
//
//	@Summary		Create or replace a batch with optimistic concurrency
//	@Tags			batches
//	@Accept			json
//	@Produce		json
//	@Param			name		path	string	true	"Batch file name"
//	@Param			If-Match	header	string	false	"Checksum of the batch being replaced"
//	@Success		200			{object}	BatchDetail
//	@Success		201			{object}	BatchDetail
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batches/{name} [put]
func (h *Handler) PutBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	detail, created, err := h.svc.PutBatch(r.Context(), chi.URLParam(r, "name"), body, r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "put batch", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("ETag", `"`+detail.Checksum+`"`)
	writeJSON(w, status, detail)
}

// DeleteBatch handles DELETE /api/batches/{name}.
//
//	@Summary		Delete a batch
//	@Tags			batches
//	@Param			name	path	string	true	"Batch file name"
//	@Success		204		"Batch deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batches/{name} [delete]
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBatch(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
