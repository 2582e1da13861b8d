// Package ingest orchestrates the upload path: validate the file, enforce
// quota, enrich through the LLM gateway, persist, then count usage. The
// ordering is deliberate — cheap checks run before the expensive external
// call, and the usage counter moves only after everything else succeeded.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/enrich"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/notify"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/storage"
	"github.com/studywise/backend/internal/store"
	"github.com/studywise/backend/internal/usage"
)

const pdfMimeType = "application/pdf"

// Enricher is the slice of the enrichment gateway the ingest path uses.
type Enricher interface {
	Summarize(ctx context.Context, fileBytes []byte, filename string) (*enrich.SummarizeResult, error)
	GenerateStudyMaterials(ctx context.Context, text, summary string) (*enrich.StudyMaterials, error)
}

type Pipeline struct {
	store    store.Store
	objects  storage.Storage
	bucket   string
	enricher Enricher
	policy   *quota.Policy
	ledger   *usage.Ledger
	notifier *notify.Dispatcher
	maxSize  int64
}

func NewPipeline(s store.Store, objects storage.Storage, bucket string, e Enricher, p *quota.Policy, l *usage.Ledger, n *notify.Dispatcher, maxSize int64) *Pipeline {
	return &Pipeline{
		store:    s,
		objects:  objects,
		bucket:   bucket,
		enricher: e,
		policy:   p,
		ledger:   l,
		notifier: n,
		maxSize:  maxSize,
	}
}

type UploadRequest struct {
	FileBytes    []byte
	Filename     string
	Mime         string
	Size         int64
	CollectionID *uuid.UUID
}

// Ingest runs the full upload pipeline and returns the completed document.
// No record with any status other than "completed" is ever written; a
// failure at any step leaves no document behind.
func (p *Pipeline) Ingest(ctx context.Context, user *models.User, req UploadRequest) (*models.Document, error) {
	if req.Mime != pdfMimeType {
		return nil, apperr.Newf(apperr.KindInvalidInput, "unsupported file type %q, only PDF is accepted", req.Mime)
	}
	if req.Size > p.maxSize {
		return nil, apperr.Newf(apperr.KindInvalidInput, "file exceeds the %d byte upload limit", p.maxSize)
	}
	if len(req.FileBytes) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "empty file")
	}

	if err := p.policy.Check(user, quota.OpDocument); err != nil {
		return nil, err
	}

	if req.CollectionID != nil {
		if _, err := p.store.GetCollection(ctx, user.ID, *req.CollectionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.New(apperr.KindNotFound, "collection not found")
			}
			return nil, apperr.Wrap(apperr.KindPersistence, "load collection", err)
		}
	}

	result, err := enrich.RetryTransient(ctx, func() (*enrich.SummarizeResult, error) {
		return p.enricher.Summarize(ctx, req.FileBytes, req.Filename)
	})
	if err != nil {
		return nil, err
	}

	docID := uuid.New()
	path := fmt.Sprintf("%s/%s/%s", user.ID, docID, req.Filename)
	if err := p.objects.Upload(ctx, p.bucket, path, bytes.NewReader(req.FileBytes), pdfMimeType); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "store uploaded file", err)
	}

	doc := &models.Document{
		ID:            docID,
		UserID:        user.ID,
		CollectionID:  req.CollectionID,
		Filename:      req.Filename,
		FileSizeBytes: req.Size,
		StoragePath:   path,
		ExtractedText: result.Text,
		PageCount:     result.Pages,
		Summary:       result.Summary,
		Notes:         result.Notes,
		Flashcards:    []models.Flashcard{},
		Quiz:          []models.QuizQuestion{},
		Status:        models.DocStatusCompleted,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "persist document", err)
	}

	// The document exists from here on. A failed increment undercounts
	// usage rather than failing the upload the user already paid for.
	if _, err := p.ledger.Increment(ctx, user.ID, quota.OpDocument); err != nil {
		slog.Error("usage increment failed after document persist",
			"document_id", doc.ID, "user_id", user.ID, "error", err)
	}

	if p.notifier != nil {
		p.notifier.DocumentCompleted(doc)
	}

	return doc, nil
}

// Refine regenerates flashcards and quiz from the stored text and summary,
// overwriting only those two fields. It is not a new upload: no quota
// check, no counter increment.
func (p *Pipeline) Refine(ctx context.Context, user *models.User, docID uuid.UUID) (*enrich.StudyMaterials, error) {
	doc, err := p.store.GetDocument(ctx, user.ID, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "load document", err)
	}

	materials, err := enrich.RetryTransient(ctx, func() (*enrich.StudyMaterials, error) {
		return p.enricher.GenerateStudyMaterials(ctx, doc.ExtractedText, doc.Summary)
	})
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateStudyMaterials(ctx, user.ID, docID, materials.Flashcards, materials.Quiz); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "save study materials", err)
	}

	return materials, nil
}

// GetDocument fetches one owned document.
func (p *Pipeline) GetDocument(ctx context.Context, user *models.User, docID uuid.UUID) (*models.Document, error) {
	doc, err := p.store.GetDocument(ctx, user.ID, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "load document", err)
	}
	return doc, nil
}

// ListDocuments returns all of the user's documents, newest first. The
// result is never nil so an empty library serializes as [].
func (p *Pipeline) ListDocuments(ctx context.Context, user *models.User) ([]models.Document, error) {
	docs, err := p.store.ListDocuments(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list documents", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}
