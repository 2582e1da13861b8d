package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection is a user-defined grouping of documents ("board"). Documents
// reference a collection by nullable id; deleting a collection nulls out the
// reference on its documents rather than cascading.
type Collection struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Color       string    `json:"color,omitempty" db:"color"`
	IsDefault   bool      `json:"is_default" db:"is_default"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
