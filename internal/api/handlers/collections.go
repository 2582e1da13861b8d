package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/store"
)

type CollectionHandler struct {
	store store.Store
}

func NewCollectionHandler(s store.Store) *CollectionHandler {
	return &CollectionHandler{store: s}
}

type collectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	c := &models.Collection{
		ID:          uuid.New(),
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	}
	if err := h.store.CreateCollection(r.Context(), c); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create collection"})
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	cols, err := h.store.ListCollections(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list collections"})
		return
	}
	if cols == nil {
		cols = make([]models.Collection, 0)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": cols, "count": len(cols)})
}

func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection ID"})
		return
	}

	c, err := h.store.GetCollection(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "collection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load collection"})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection ID"})
		return
	}

	c, err := h.store.GetCollection(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "collection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load collection"})
		return
	}

	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		c.Name = name
	}
	if req.Description != "" {
		c.Description = req.Description
	}
	if req.Color != "" {
		c.Color = req.Color
	}

	if err := h.store.UpdateCollection(r.Context(), c); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not update collection"})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Delete removes the collection. Documents inside it are detached, not
// deleted.
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection ID"})
		return
	}

	if err := h.store.DeleteCollection(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "collection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not delete collection"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Documents lists the documents grouped under a collection.
func (h *CollectionHandler) Documents(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection ID"})
		return
	}

	if _, err := h.store.GetCollection(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "collection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load collection"})
		return
	}

	docs, err := h.store.ListDocumentsByCollection(r.Context(), user.ID, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list documents"})
		return
	}
	if docs == nil {
		docs = make([]models.Document, 0)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}
