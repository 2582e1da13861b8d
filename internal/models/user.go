package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level that determines quota limits.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierPro:
		return true
	}
	return false
}

// User is the identity principal created by the external auth provider on
// first sign-in. Usage counters are mutated only by the ingest and
// conversation pipelines; tier only by the billing webhook.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Subject       string    `json:"-" db:"subject"`
	Email         string    `json:"email" db:"email"`
	Tier          Tier      `json:"tier" db:"tier"`
	DocumentsUsed int       `json:"documents_used" db:"documents_used"`
	MessagesUsed  int       `json:"messages_used" db:"messages_used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
