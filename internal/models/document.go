package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Flashcard is one question/answer study card.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuizQuestion is one multiple-choice question. Options always has exactly
// four entries and CorrectIndex is in [0,3]; both are validated at the
// enrichment boundary before a question reaches storage.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Document is one uploaded PDF plus its derived study artifacts. The ingest
// pipeline only ever persists a record with status "completed" — the other
// statuses exist for in-flight progress display, never as interim rows.
type Document struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	UserID        uuid.UUID      `json:"user_id" db:"user_id"`
	CollectionID  *uuid.UUID     `json:"collection_id,omitempty" db:"collection_id"`
	Filename      string         `json:"filename" db:"filename"`
	FileSizeBytes int64          `json:"file_size_bytes" db:"file_size_bytes"`
	StoragePath   string         `json:"-" db:"storage_path"`
	ExtractedText string         `json:"-" db:"extracted_text"`
	PageCount     int            `json:"page_count" db:"page_count"`
	Summary       string         `json:"summary" db:"summary"`
	Notes         []string       `json:"notes" db:"notes"`
	Flashcards    []Flashcard    `json:"flashcards" db:"flashcards"`
	Quiz          []QuizQuestion `json:"quiz" db:"quiz"`
	Status        string         `json:"status" db:"status"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}
