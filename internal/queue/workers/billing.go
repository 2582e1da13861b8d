// Package workers holds asynq task handlers run by the worker process.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/queue"
	"github.com/studywise/backend/internal/store"
)

// BillingWorker applies verified payment events to user tiers. Application
// is idempotent at the store layer, so asynq retries and provider
// redeliveries of the same event id are harmless.
type BillingWorker struct {
	store store.Store
}

func NewBillingWorker(s store.Store) *BillingWorker {
	return &BillingWorker{store: s}
}

func (w *BillingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.BillingEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("parse user ID: %w", err)
	}

	ev := models.PaymentEvent{
		EventID:     payload.EventID,
		Type:        payload.Type,
		UserID:      userID,
		Tier:        models.Tier(payload.Tier),
		ProcessedAt: time.Now().UTC(),
	}
	if ev.Type == models.PaymentEventSubscriptionCanceled {
		ev.Tier = models.TierFree
	}
	if !ev.Tier.Valid() {
		// A bad tier will never become valid on retry.
		slog.Error("billing event with unknown tier dropped",
			"event_id", ev.EventID, "tier", payload.Tier)
		return nil
	}

	applied, err := w.store.ApplyPaymentEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("apply payment event %s: %w", ev.EventID, err)
	}
	if !applied {
		slog.Info("billing event already processed", "event_id", ev.EventID)
		return nil
	}

	slog.Info("billing event applied",
		"event_id", ev.EventID, "user_id", ev.UserID, "tier", ev.Tier)
	return nil
}
