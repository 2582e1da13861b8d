package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/ingest"
)

type DocumentHandler struct {
	pipeline *ingest.Pipeline
	maxSize  int64
}

func NewDocumentHandler(p *ingest.Pipeline, maxSize int64) *DocumentHandler {
	return &DocumentHandler{pipeline: p, maxSize: maxSize}
}

// Upload accepts a multipart PDF upload and runs the full ingest pipeline
// synchronously, returning the completed document.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	// One extra byte over the limit lets the pipeline report the size
	// violation itself instead of a generic parse error.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+1<<20)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read file"})
		return
	}

	req := ingest.UploadRequest{
		FileBytes: data,
		Filename:  header.Filename,
		Mime:      header.Header.Get("Content-Type"),
		Size:      header.Size,
	}
	if raw := r.FormValue("collectionId"); raw != "" {
		collID, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection ID"})
			return
		}
		req.CollectionID = &collID
	}

	doc, err := h.pipeline.Ingest(r.Context(), user, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	docs, err := h.pipeline.ListDocuments(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	doc, err := h.pipeline.GetDocument(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Refine regenerates flashcards and quiz questions for an existing
// document. It does not consume quota and can be called repeatedly.
func (h *DocumentHandler) Refine(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	materials, err := h.pipeline.Refine(r.Context(), user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, materials)
}
