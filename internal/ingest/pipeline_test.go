package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/enrich"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/storage"
	"github.com/studywise/backend/internal/store"
	"github.com/studywise/backend/internal/usage"
)

type fakeEnricher struct {
	summarizeCalls int
	summarizeErrs  []error // consumed in order; nil entry means success
	materialsCalls int
	materialsErr   error
	materialsSets  []*enrich.StudyMaterials // consumed in order; empty means default
}

func (f *fakeEnricher) Summarize(_ context.Context, _ []byte, _ string) (*enrich.SummarizeResult, error) {
	f.summarizeCalls++
	if len(f.summarizeErrs) > 0 {
		err := f.summarizeErrs[0]
		f.summarizeErrs = f.summarizeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &enrich.SummarizeResult{
		Summary: "a study document",
		Notes:   []string{"point one", "point two"},
		Text:    "full extracted text",
		Pages:   4,
	}, nil
}

func (f *fakeEnricher) GenerateStudyMaterials(_ context.Context, _, _ string) (*enrich.StudyMaterials, error) {
	f.materialsCalls++
	if f.materialsErr != nil {
		return nil, f.materialsErr
	}
	if len(f.materialsSets) > 0 {
		m := f.materialsSets[0]
		f.materialsSets = f.materialsSets[1:]
		return m, nil
	}
	return &enrich.StudyMaterials{
		Flashcards: []models.Flashcard{{Question: "q", Answer: "a"}},
		Quiz: []models.QuizQuestion{{
			Question:     "pick one",
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 1,
		}},
	}, nil
}

const testMaxUpload = 1 << 10

func newTestPipeline(t *testing.T, e *fakeEnricher) (*Pipeline, *store.MemoryStore, *models.User) {
	t.Helper()
	st := store.NewMemoryStore()
	user, err := st.UpsertUserBySubject(context.Background(), "sub-1", "s@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	policy := quota.NewPolicy(config.QuotaConfig{
		FreeDocuments: 3, FreeMessages: 50,
		PremiumDocuments: 50, PremiumMessages: 1000,
		ProDocuments: 500, ProMessages: 10000,
	})
	p := NewPipeline(st, storage.NewMemoryStorage(), "documents", e,
		policy, usage.NewLedger(st), nil, testMaxUpload)
	return p, st, user
}

func pdfUpload(size int) UploadRequest {
	return UploadRequest{
		FileBytes: []byte(strings.Repeat("x", size)),
		Filename:  "notes.pdf",
		Mime:      "application/pdf",
		Size:      int64(size),
	}
}

func TestIngestSuccess(t *testing.T) {
	e := &fakeEnricher{}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	doc, err := p.Ingest(ctx, user, pdfUpload(64))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if doc.Status != models.DocStatusCompleted {
		t.Fatalf("status = %q, want completed", doc.Status)
	}
	if doc.Summary != "a study document" || doc.PageCount != 4 {
		t.Fatalf("enrichment fields not persisted: %+v", doc)
	}
	if doc.ExtractedText != "full extracted text" {
		t.Fatalf("extracted text = %q", doc.ExtractedText)
	}

	docs, _ := st.ListDocuments(ctx, user.ID)
	if len(docs) != 1 {
		t.Fatalf("stored %d documents, want 1", len(docs))
	}

	u, _ := st.GetUser(ctx, user.ID)
	if u.DocumentsUsed != 1 {
		t.Fatalf("documents_used = %d, want 1", u.DocumentsUsed)
	}
}

func TestIngestStoresOriginalFile(t *testing.T) {
	e := &fakeEnricher{}
	p, _, user := newTestPipeline(t, e)
	ctx := context.Background()

	doc, err := p.Ingest(ctx, user, pdfUpload(64))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	objects := p.objects
	path := fmt.Sprintf("%s/%s/%s", user.ID, doc.ID, "notes.pdf")
	rc, err := objects.Download(ctx, "documents", path)
	if err != nil {
		t.Fatalf("uploaded file not found at %s: %v", path, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if len(data) != 64 {
		t.Fatalf("stored %d bytes, want 64", len(data))
	}
}

func TestIngestRejectsNonPDF(t *testing.T) {
	e := &fakeEnricher{}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	req := pdfUpload(64)
	req.Mime = "text/plain"
	if _, err := p.Ingest(ctx, user, req); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("Ingest() = %v, want InvalidInput", err)
	}
	if e.summarizeCalls != 0 {
		t.Fatal("gateway should not be called for a rejected file")
	}
	if docs, _ := st.ListDocuments(ctx, user.ID); len(docs) != 0 {
		t.Fatal("rejected upload must not persist a document")
	}
}

func TestIngestSizeBoundary(t *testing.T) {
	e := &fakeEnricher{}
	p, _, user := newTestPipeline(t, e)
	ctx := context.Background()

	// Exactly at the limit is accepted.
	if _, err := p.Ingest(ctx, user, pdfUpload(testMaxUpload)); err != nil {
		t.Fatalf("file at the size limit was rejected: %v", err)
	}

	// One byte over is not.
	if _, err := p.Ingest(ctx, user, pdfUpload(testMaxUpload+1)); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("oversized file: got %v, want InvalidInput", err)
	}
}

func TestIngestQuotaDenied(t *testing.T) {
	e := &fakeEnricher{}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := st.IncrementDocumentsUsed(ctx, user.ID); err != nil {
			t.Fatalf("seed counter: %v", err)
		}
	}
	user, _ = st.GetUser(ctx, user.ID)

	_, err := p.Ingest(ctx, user, pdfUpload(64))
	if !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Fatalf("Ingest() = %v, want QuotaExceeded", err)
	}
	if !strings.Contains(apperr.Message(err), "free") {
		t.Fatalf("deny message %q does not name the tier", apperr.Message(err))
	}
	if e.summarizeCalls != 0 {
		t.Fatal("gateway must not be called once quota is exhausted")
	}
	if docs, _ := st.ListDocuments(ctx, user.ID); len(docs) != 0 {
		t.Fatal("denied upload must not persist a document")
	}
	u, _ := st.GetUser(ctx, user.ID)
	if u.DocumentsUsed != 3 {
		t.Fatalf("denied upload moved the counter to %d", u.DocumentsUsed)
	}
}

func TestIngestGatewayPermanentFailure(t *testing.T) {
	e := &fakeEnricher{
		summarizeErrs: []error{apperr.New(apperr.KindGatewaySchemaInvalid, "bad response")},
	}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	_, err := p.Ingest(ctx, user, pdfUpload(64))
	if !apperr.Is(err, apperr.KindGatewaySchemaInvalid) {
		t.Fatalf("Ingest() = %v, want GatewaySchemaInvalid", err)
	}
	if e.summarizeCalls != 1 {
		t.Fatalf("permanent failure retried: %d calls", e.summarizeCalls)
	}
	if docs, _ := st.ListDocuments(ctx, user.ID); len(docs) != 0 {
		t.Fatal("failed enrichment must not persist a document")
	}
	u, _ := st.GetUser(ctx, user.ID)
	if u.DocumentsUsed != 0 {
		t.Fatalf("failed upload moved the counter to %d", u.DocumentsUsed)
	}
}

func TestIngestRetriesTransientOnce(t *testing.T) {
	e := &fakeEnricher{
		summarizeErrs: []error{apperr.New(apperr.KindGatewayTransient, "timeout"), nil},
	}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	doc, err := p.Ingest(ctx, user, pdfUpload(64))
	if err != nil {
		t.Fatalf("Ingest() after transient failure: %v", err)
	}
	if e.summarizeCalls != 2 {
		t.Fatalf("summarize called %d times, want 2", e.summarizeCalls)
	}
	if doc.Status != models.DocStatusCompleted {
		t.Fatalf("status = %q", doc.Status)
	}
	if docs, _ := st.ListDocuments(ctx, user.ID); len(docs) != 1 {
		t.Fatalf("stored %d documents, want 1", len(docs))
	}
}

func TestIngestUnknownCollection(t *testing.T) {
	e := &fakeEnricher{}
	p, _, user := newTestPipeline(t, e)

	req := pdfUpload(64)
	other := uuid.New()
	req.CollectionID = &other

	if _, err := p.Ingest(context.Background(), user, req); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Ingest() = %v, want NotFound for unknown collection", err)
	}
}

func TestRefineOverwritesOnlyStudyMaterials(t *testing.T) {
	e := &fakeEnricher{}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	doc, err := p.Ingest(ctx, user, pdfUpload(64))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	materials, err := p.Refine(ctx, user, doc.ID)
	if err != nil {
		t.Fatalf("Refine() error: %v", err)
	}
	if len(materials.Flashcards) == 0 || len(materials.Quiz) == 0 {
		t.Fatalf("Refine() returned empty materials: %+v", materials)
	}

	updated, _ := st.GetDocument(ctx, user.ID, doc.ID)
	if len(updated.Flashcards) != 1 || len(updated.Quiz) != 1 {
		t.Fatalf("study materials not persisted: %+v", updated)
	}
	if updated.Summary != doc.Summary || updated.ExtractedText != doc.ExtractedText {
		t.Fatal("refine must not touch summary or extracted text")
	}

	// Refinement is not a new upload.
	u, _ := st.GetUser(ctx, user.ID)
	if u.DocumentsUsed != 1 {
		t.Fatalf("documents_used = %d after refine, want 1", u.DocumentsUsed)
	}
}

func TestRefineTwiceReplacesMaterials(t *testing.T) {
	e := &fakeEnricher{
		materialsSets: []*enrich.StudyMaterials{
			{
				Flashcards: []models.Flashcard{{Question: "first q", Answer: "first a"}},
				Quiz: []models.QuizQuestion{{
					Question: "first quiz", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0,
				}},
			},
			{
				Flashcards: []models.Flashcard{
					{Question: "second q1", Answer: "second a1"},
					{Question: "second q2", Answer: "second a2"},
				},
				Quiz: []models.QuizQuestion{{
					Question: "second quiz", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2,
				}},
			},
		},
	}
	p, st, user := newTestPipeline(t, e)
	ctx := context.Background()

	doc, err := p.Ingest(ctx, user, pdfUpload(64))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := p.Refine(ctx, user, doc.ID); err != nil {
			t.Fatalf("Refine() #%d error: %v", i+1, err)
		}
	}

	// The second refinement replaces the first wholesale.
	updated, _ := st.GetDocument(ctx, user.ID, doc.ID)
	if len(updated.Flashcards) != 2 || len(updated.Quiz) != 1 {
		t.Fatalf("stored %d flashcards and %d quiz questions, want 2 and 1",
			len(updated.Flashcards), len(updated.Quiz))
	}
	if updated.Flashcards[0].Question != "second q1" || updated.Quiz[0].Question != "second quiz" {
		t.Fatalf("stored materials are not the latest set: %+v", updated.Flashcards)
	}
	if e.materialsCalls != 2 {
		t.Fatalf("materials generated %d times, want 2", e.materialsCalls)
	}
}

func TestRefineUnknownDocument(t *testing.T) {
	e := &fakeEnricher{}
	p, _, user := newTestPipeline(t, e)

	if _, err := p.Refine(context.Background(), user, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Refine() = %v, want NotFound", err)
	}
}
