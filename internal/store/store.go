// Package store defines persistence for users, documents, collections,
// conversation turns, and payment events, with a postgres implementation
// for production and an in-memory one for tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/models"
)

// ErrNotFound is returned when a row does not exist or is owned by another
// user; callers cannot distinguish the two cases.
var ErrNotFound = errors.New("not found")

type Store interface {
	// users
	UpsertUserBySubject(ctx context.Context, subject, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetUserTier(ctx context.Context, id uuid.UUID, tier models.Tier) error
	// Counter increments are atomic at the storage layer: concurrent
	// requests for the same user must not lose updates.
	IncrementDocumentsUsed(ctx context.Context, id uuid.UUID) (int, error)
	IncrementMessagesUsed(ctx context.Context, id uuid.UUID) (int, error)

	// documents
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, userID, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	ListDocumentsByCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]models.Document, error)
	// UpdateStudyMaterials overwrites only the flashcards and quiz fields.
	UpdateStudyMaterials(ctx context.Context, userID, id uuid.UUID, cards []models.Flashcard, quiz []models.QuizQuestion) error

	// collections
	CreateCollection(ctx context.Context, c *models.Collection) error
	GetCollection(ctx context.Context, userID, id uuid.UUID) (*models.Collection, error)
	ListCollections(ctx context.Context, userID uuid.UUID) ([]models.Collection, error)
	UpdateCollection(ctx context.Context, c *models.Collection) error
	// DeleteCollection nulls out collection_id on referencing documents;
	// it never cascades to the documents themselves.
	DeleteCollection(ctx context.Context, userID, id uuid.UUID) error

	// turns
	// AppendTurn assigns t.Seq = max(seq)+1 for the (document, user) pair
	// and persists the turn. Assignment is serialized per pair so sequence
	// numbers stay gapless under concurrent sends.
	AppendTurn(ctx context.Context, t *models.Turn) error
	ListTurns(ctx context.Context, userID, documentID uuid.UUID) ([]models.Turn, error)
	// RecentTurns returns up to n most recent turns, oldest-first.
	RecentTurns(ctx context.Context, userID, documentID uuid.UUID, n int) ([]models.Turn, error)

	// billing
	// ApplyPaymentEvent records the event and updates the user's tier.
	// It reports false without side effects when the event id was already
	// processed, making provider redelivery idempotent.
	ApplyPaymentEvent(ctx context.Context, ev models.PaymentEvent) (bool, error)
}
