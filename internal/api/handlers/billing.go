package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/studywise/backend/internal/notify"
	"github.com/studywise/backend/internal/queue"
)

// BillingHandler receives payment-provider webhooks. It verifies the HMAC
// signature, then hands the event to the worker queue; tier changes are
// applied asynchronously and idempotently.
type BillingHandler struct {
	secret string
	queue  *queue.Client
}

func NewBillingHandler(secret string, qc *queue.Client) *BillingHandler {
	return &BillingHandler{secret: secret, queue: qc}
}

type billingWebhookEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Tier    string `json:"tier"`
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if !notify.VerifySignature(body, h.secret, sig) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var ev billingWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
		return
	}
	if ev.EventID == "" || ev.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_id and user_id are required"})
		return
	}

	err = h.queue.EnqueueBillingEvent(queue.BillingEventPayload{
		EventID: ev.EventID,
		Type:    ev.Type,
		UserID:  ev.UserID,
		Tier:    ev.Tier,
	})
	if err != nil {
		slog.Error("enqueue billing event", "event_id", ev.EventID, "error", err)
		// 5xx tells the provider to redeliver; the store dedupes by
		// event id once a delivery does land.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not accept event"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
