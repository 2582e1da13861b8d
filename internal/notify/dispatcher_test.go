package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/models"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"document.completed"}`)
	sig := Sign(payload, "topsecret")

	if !VerifySignature(payload, "topsecret", sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature([]byte(`{"event":"tampered"}`), "topsecret", sig) {
		t.Fatal("signature accepted for altered payload")
	}
	if VerifySignature(payload, "wrongsecret", sig) {
		t.Fatal("signature accepted with wrong secret")
	}
	if VerifySignature(payload, "topsecret", "") {
		t.Fatal("empty signature accepted")
	}
}

func TestDispatcherDeliversSignedEvent(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		received <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(config.NotifyConfig{WebhookURL: srv.URL, WebhookSecret: "topsecret"})
	if d == nil {
		t.Fatal("dispatcher disabled despite configured URL")
	}

	doc := &models.Document{ID: uuid.New(), UserID: uuid.New(), Filename: "notes.pdf", PageCount: 3}
	d.DocumentCompleted(doc)

	select {
	case r := <-received:
		body := <-bodies
		if r.Header.Get("X-Webhook-Event") != "document.completed" {
			t.Fatalf("event header = %q", r.Header.Get("X-Webhook-Event"))
		}
		if !VerifySignature(body, "topsecret", r.Header.Get("X-Webhook-Signature")) {
			t.Fatal("delivered payload has an invalid signature")
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if payload["document_id"] != doc.ID.String() {
			t.Fatalf("payload document_id = %v", payload["document_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDisabledWithoutURL(t *testing.T) {
	if d := NewDispatcher(config.NotifyConfig{}); d != nil {
		t.Fatal("dispatcher should be nil when no URL is configured")
	}
}
