// Package notify delivers signed document.completed events to a configured
// endpoint so the web frontend can revalidate without polling. Delivery is
// fire-and-forget from the pipeline's point of view.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/models"
)

const eventDocumentCompleted = "document.completed"

type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	deliveries chan delivery
}

type delivery struct {
	Event   string
	Payload []byte
}

// NewDispatcher returns nil when no endpoint is configured; callers treat a
// nil dispatcher as disabled.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	if cfg.WebhookURL == "" {
		return nil
	}
	d := &Dispatcher{
		url:        cfg.WebhookURL,
		secret:     cfg.WebhookSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		deliveries: make(chan delivery, 256),
	}
	go d.processLoop()
	return d
}

// DocumentCompleted enqueues a completion event. A full queue drops the
// event rather than blocking the request path.
func (d *Dispatcher) DocumentCompleted(doc *models.Document) {
	payload, err := json.Marshal(map[string]any{
		"event":       eventDocumentCompleted,
		"document_id": doc.ID,
		"user_id":     doc.UserID,
		"filename":    doc.Filename,
		"page_count":  doc.PageCount,
	})
	if err != nil {
		slog.Error("encode notify payload", "error", err)
		return
	}

	select {
	case d.deliveries <- delivery{Event: eventDocumentCompleted, Payload: payload}:
	default:
		slog.Warn("notify queue full, dropping event", "event", eventDocumentCompleted, "document_id", doc.ID)
	}
}

func (d *Dispatcher) processLoop() {
	for del := range d.deliveries {
		d.deliver(del)
	}
}

func (d *Dispatcher) deliver(del delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(del.Payload))
	if err != nil {
		slog.Error("notify request creation failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", del.Event)
	req.Header.Set("X-Webhook-Signature", Sign(del.Payload, d.secret))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		slog.Error("notify delivery failed", "event", del.Event, "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("notify endpoint returned non-success", "event", del.Event, "status", resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks a signature produced by Sign in constant time.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
