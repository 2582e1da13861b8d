package queue

const (
	TypeBillingEvent = "billing:event"
)

// BillingEventPayload carries one verified payment-provider event from the
// webhook handler to the worker that applies it.
type BillingEventPayload struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Tier    string `json:"tier"`
}
