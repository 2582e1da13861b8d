package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/chat"
	"github.com/studywise/backend/internal/models"
)

type MessageHandler struct {
	pipeline *chat.Pipeline
}

func NewMessageHandler(p *chat.Pipeline) *MessageHandler {
	return &MessageHandler{pipeline: p}
}

type sendMessageRequest struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

// Send appends one user message to a document thread and returns both the
// persisted user turn and the generated assistant turn.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	pair, err := h.pipeline.SendTurn(r.Context(), user, docID, req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// List returns a document's full thread in sequence order.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	docID, err := uuid.Parse(r.URL.Query().Get("documentId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId query parameter is required"})
		return
	}

	turns, err := h.pipeline.ListTurns(r.Context(), user, docID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if turns == nil {
		turns = make([]models.Turn, 0)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": turns, "count": len(turns)})
}
