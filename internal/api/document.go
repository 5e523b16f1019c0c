package api

import (
	"io"
	"net/http"

	"github.com/starford/commentmap/internal/commentservice"
)

const maxDocumentBytes = 50 << 20 // 50 MB

// DocumentHandler serves and accepts the design document export.
type DocumentHandler struct {
	svc *commentservice.Service
}

// NewDocumentHandler creates a handler for the document routes.
func NewDocumentHandler(svc *commentservice.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Summary handles GET /api/document.
//
//	@Summary		Describe the loaded document
//	@Tags			document
//	@Produce		json
//	@Success		200	{object}	doctree.Summary
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *DocumentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Document(r.Context()))
}

// Upload handles POST /api/document (multipart/form-data, field "file").
// A changed document re-enriches every stored batch.
//
//	@Summary		Replace the document export
//	@Tags			document
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"JSON or YAML export"
//	@Success		200		{object}	doctree.Summary
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	summary, err := h.svc.ReplaceDocument(r.Context(), data)
	if err != nil {
		writeServiceError(w, "replace document", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
