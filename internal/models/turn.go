package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a document-scoped chat thread. Seq is gapless and
// strictly increasing within a (document, user) pair; an assistant turn's
// seq is always exactly one greater than the user turn that triggered it.
// Turns are immutable once created.
type Turn struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Role       string    `json:"role" db:"role"`
	Content    string    `json:"content" db:"content"`
	Seq        int       `json:"sequence" db:"seq"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
