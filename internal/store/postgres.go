package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studywise/backend/internal/models"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const userCols = "id, subject, email, tier, documents_used, messages_used, created_at, updated_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Tier, &u.DocumentsUsed, &u.MessagesUsed, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpsertUserBySubject(ctx context.Context, subject, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (subject, email) VALUES ($1, $2)
		 ON CONFLICT (subject) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
		 RETURNING `+userCols,
		subject, email,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SetUserTier(ctx context.Context, id uuid.UUID, tier models.Tier) error {
	tag, err := s.db.Exec(ctx, "UPDATE users SET tier = $1, updated_at = now() WHERE id = $2", tier, id)
	if err != nil {
		return fmt.Errorf("set user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementDocumentsUsed(ctx context.Context, id uuid.UUID) (int, error) {
	return s.increment(ctx, id, "documents_used")
}

func (s *PostgresStore) IncrementMessagesUsed(ctx context.Context, id uuid.UUID) (int, error) {
	return s.increment(ctx, id, "messages_used")
}

func (s *PostgresStore) increment(ctx context.Context, id uuid.UUID, column string) (int, error) {
	// column is one of two compile-time constants, never user input
	var n int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf("UPDATE users SET %s = %s + 1, updated_at = now() WHERE id = $1 RETURNING %s", column, column, column),
		id,
	).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment %s: %w", column, err)
	}
	return n, nil
}

const docCols = `id, user_id, collection_id, filename, file_size_bytes, storage_path,
	extracted_text, page_count, summary, notes, flashcards, quiz, status, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	var notes, cards, quiz []byte
	err := row.Scan(&d.ID, &d.UserID, &d.CollectionID, &d.Filename, &d.FileSizeBytes, &d.StoragePath,
		&d.ExtractedText, &d.PageCount, &d.Summary, &notes, &cards, &quiz, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(notes, &d.Notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	if err := json.Unmarshal(cards, &d.Flashcards); err != nil {
		return nil, fmt.Errorf("decode flashcards: %w", err)
	}
	if err := json.Unmarshal(quiz, &d.Quiz); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	notes, err := json.Marshal(doc.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	cards, err := json.Marshal(doc.Flashcards)
	if err != nil {
		return fmt.Errorf("encode flashcards: %w", err)
	}
	quiz, err := json.Marshal(doc.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO documents (id, user_id, collection_id, filename, file_size_bytes, storage_path,
			extracted_text, page_count, summary, notes, flashcards, quiz, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		doc.ID, doc.UserID, doc.CollectionID, doc.Filename, doc.FileSizeBytes, doc.StoragePath,
		doc.ExtractedText, doc.PageCount, doc.Summary, notes, cards, quiz, doc.Status,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, userID, id uuid.UUID) (*models.Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx,
		"SELECT "+docCols+" FROM documents WHERE id = $1 AND user_id = $2", id, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	return s.listDocuments(ctx,
		"SELECT "+docCols+" FROM documents WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (s *PostgresStore) ListDocumentsByCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]models.Document, error) {
	return s.listDocuments(ctx,
		"SELECT "+docCols+" FROM documents WHERE user_id = $1 AND collection_id = $2 ORDER BY created_at DESC",
		userID, collectionID)
}

func (s *PostgresStore) listDocuments(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) UpdateStudyMaterials(ctx context.Context, userID, id uuid.UUID, cards []models.Flashcard, quiz []models.QuizQuestion) error {
	cardsJSON, err := json.Marshal(cards)
	if err != nil {
		return fmt.Errorf("encode flashcards: %w", err)
	}
	quizJSON, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET flashcards = $1, quiz = $2, updated_at = now() WHERE id = $3 AND user_id = $4",
		cardsJSON, quizJSON, id, userID)
	if err != nil {
		return fmt.Errorf("update study materials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const collectionCols = "id, user_id, name, description, color, is_default, created_at, updated_at"

func scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Color, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCollection(ctx context.Context, c *models.Collection) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO collections (id, user_id, name, description, color, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.Name, c.Description, c.Color, c.IsDefault,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCollection(ctx context.Context, userID, id uuid.UUID) (*models.Collection, error) {
	c, err := scanCollection(s.db.QueryRow(ctx,
		"SELECT "+collectionCols+" FROM collections WHERE id = $1 AND user_id = $2", id, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context, userID uuid.UUID) ([]models.Collection, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+collectionCols+" FROM collections WHERE user_id = $1 ORDER BY created_at ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	cols := []models.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		cols = append(cols, *c)
	}
	return cols, rows.Err()
}

func (s *PostgresStore) UpdateCollection(ctx context.Context, c *models.Collection) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE collections SET name = $1, description = $2, color = $3, updated_at = now()
		 WHERE id = $4 AND user_id = $5`,
		c.Name, c.Description, c.Color, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, userID, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete collection: %w", err)
	}
	defer tx.Rollback(ctx)

	// ON DELETE SET NULL covers the documents; the explicit update keeps
	// updated_at honest on the affected rows.
	if _, err := tx.Exec(ctx,
		"UPDATE documents SET collection_id = NULL, updated_at = now() WHERE collection_id = $1 AND user_id = $2",
		id, userID); err != nil {
		return fmt.Errorf("detach documents: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM collections WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) AppendTurn(ctx context.Context, t *models.Turn) error {
	// Seq is computed and inserted in one statement; the unique index on
	// (document_id, user_id, seq) catches a concurrent sender computing the
	// same value, and the insert is retried with a fresh max.
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := s.db.QueryRow(ctx,
			`INSERT INTO turns (id, document_id, user_id, role, content, seq)
			 SELECT $1, $2, $3, $4, $5, COALESCE(MAX(seq), 0) + 1
			 FROM turns WHERE document_id = $2 AND user_id = $3
			 RETURNING seq, created_at`,
			t.ID, t.DocumentID, t.UserID, t.Role, t.Content,
		).Scan(&t.Seq, &t.CreatedAt)
		if err == nil {
			return nil
		}
		lastErr = err
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			break
		}
	}
	return fmt.Errorf("append turn: %w", lastErr)
}

const turnCols = "id, document_id, user_id, role, content, seq, created_at"

func (s *PostgresStore) ListTurns(ctx context.Context, userID, documentID uuid.UUID) ([]models.Turn, error) {
	return s.queryTurns(ctx,
		"SELECT "+turnCols+" FROM turns WHERE document_id = $1 AND user_id = $2 ORDER BY seq ASC",
		documentID, userID)
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID, documentID uuid.UUID, n int) ([]models.Turn, error) {
	turns, err := s.queryTurns(ctx,
		`SELECT `+turnCols+` FROM (
			SELECT `+turnCols+` FROM turns
			WHERE document_id = $1 AND user_id = $2
			ORDER BY seq DESC LIMIT $3
		 ) recent ORDER BY seq ASC`,
		documentID, userID, n)
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *PostgresStore) queryTurns(ctx context.Context, query string, args ...any) ([]models.Turn, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.UserID, &t.Role, &t.Content, &t.Seq, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) ApplyPaymentEvent(ctx context.Context, ev models.PaymentEvent) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin payment event: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO payment_events (event_id, type, user_id, tier)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.Type, ev.UserID, ev.Tier)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		"UPDATE users SET tier = $1, updated_at = now() WHERE id = $2", ev.Tier, ev.UserID); err != nil {
		return false, fmt.Errorf("apply tier change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit payment event: %w", err)
	}
	return true, nil
}
