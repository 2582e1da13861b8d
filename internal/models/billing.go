package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentEventSubscriptionUpdated  = "subscription.updated"
	PaymentEventSubscriptionCanceled = "subscription.canceled"
)

// PaymentEvent is one webhook event from the payments provider. EventID is
// the provider's id and is unique in storage, which makes event application
// idempotent under provider redelivery.
type PaymentEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	Type        string    `json:"type" db:"type"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Tier        Tier      `json:"tier" db:"tier"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}
