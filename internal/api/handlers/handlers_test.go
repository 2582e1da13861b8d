package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/enrich"
	"github.com/studywise/backend/internal/ingest"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/storage"
	"github.com/studywise/backend/internal/store"
	"github.com/studywise/backend/internal/usage"
)

func testQuotaConfig() config.QuotaConfig {
	return config.QuotaConfig{
		FreeDocuments: 3, FreeMessages: 50,
		PremiumDocuments: 50, PremiumMessages: 1000,
		ProDocuments: 500, ProMessages: 10000,
	}
}

// withUser injects an authenticated user the way the JWT middleware does.
func withUser(u *models.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

func seedUser(t *testing.T, st *store.MemoryStore) *models.User {
	t.Helper()
	u, err := st.UpsertUserBySubject(context.Background(), "sub-1", "s@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestUsageGet(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	ctx := context.Background()
	st.IncrementDocumentsUsed(ctx, user.ID)
	st.IncrementMessagesUsed(ctx, user.ID)
	st.IncrementMessagesUsed(ctx, user.ID)
	user, _ = st.GetUser(ctx, user.ID)

	h := NewUsageHandler(quota.NewPolicy(testQuotaConfig()))

	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Get("/usage", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/usage", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got usageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := usageResponse{Tier: "free", DocumentsUsed: 1, DocumentsMax: 3, MessagesUsed: 2, MessagesMax: 50}
	if got != want {
		t.Fatalf("usage = %+v, want %+v", got, want)
	}
}

func TestCollectionsCRUD(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	h := NewCollectionHandler(st)

	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Post("/collections", h.Create)
	r.Get("/collections", h.List)
	r.Get("/collections/{id}", h.Get)
	r.Put("/collections/{id}", h.Update)
	r.Delete("/collections/{id}", h.Delete)

	// Create
	body := bytes.NewBufferString(`{"name": "Biology", "color": "#00ff00"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/collections", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created models.Collection
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created collection: %v", err)
	}
	if created.Name != "Biology" || created.UserID != user.ID {
		t.Fatalf("created = %+v", created)
	}

	// Blank name rejected
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(`{"name": "  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name status = %d", rec.Code)
	}

	// Update
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/collections/"+created.ID.String(),
		bytes.NewBufferString(`{"name": "Cell Biology"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Get reflects the update
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections/"+created.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var fetched models.Collection
	json.Unmarshal(rec.Body.Bytes(), &fetched)
	if fetched.Name != "Cell Biology" {
		t.Fatalf("fetched name = %q", fetched.Name)
	}

	// Delete, then 404
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/collections/"+created.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections/"+created.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestCollectionNotFoundForForeignUser(t *testing.T) {
	st := store.NewMemoryStore()
	owner := seedUser(t, st)
	ctx := context.Background()

	coll := &models.Collection{ID: uuid.New(), UserID: owner.ID, Name: "private"}
	if err := st.CreateCollection(ctx, coll); err != nil {
		t.Fatalf("seed collection: %v", err)
	}

	intruder, _ := st.UpsertUserBySubject(ctx, "sub-2", "other@example.com")
	h := NewCollectionHandler(st)

	r := chi.NewRouter()
	r.Use(withUser(intruder))
	r.Get("/collections/{id}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections/"+coll.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign access status = %d, want 404", rec.Code)
	}
}

func TestCollectionsListAlwaysArray(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	h := NewCollectionHandler(st)

	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Get("/collections", h.List)
	r.Get("/documents/by-collection/{id}", h.Documents)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections", nil))
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"collections":[]`)) {
		t.Fatalf("empty list did not serialize as []: %s", rec.Body.String())
	}

	// An unknown collection is 404, not an empty list.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/by-collection/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown collection status = %d, want 404", rec.Code)
	}
}

func TestByCollectionDocumentsAlwaysArray(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	ctx := context.Background()

	coll := &models.Collection{ID: uuid.New(), UserID: user.ID, Name: "empty board"}
	if err := st.CreateCollection(ctx, coll); err != nil {
		t.Fatalf("seed collection: %v", err)
	}

	h := NewCollectionHandler(st)
	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Get("/documents/by-collection/{id}", h.Documents)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/by-collection/"+coll.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"documents":[]`)) {
		t.Fatalf("empty collection did not serialize documents as []: %s", rec.Body.String())
	}
}

type stubEnricher struct{}

func (stubEnricher) Summarize(_ context.Context, _ []byte, _ string) (*enrich.SummarizeResult, error) {
	return &enrich.SummarizeResult{
		Summary: "a study document",
		Notes:   []string{"point one"},
		Text:    "full extracted text",
		Pages:   2,
	}, nil
}

func (stubEnricher) GenerateStudyMaterials(_ context.Context, _, _ string) (*enrich.StudyMaterials, error) {
	return &enrich.StudyMaterials{
		Flashcards: []models.Flashcard{{Question: "q", Answer: "a"}},
		Quiz: []models.QuizQuestion{{
			Question: "pick one", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1,
		}},
	}, nil
}

func newDocumentsRouter(t *testing.T, st *store.MemoryStore, user *models.User) chi.Router {
	t.Helper()
	p := ingest.NewPipeline(st, storage.NewMemoryStorage(), "documents", stubEnricher{},
		quota.NewPolicy(testQuotaConfig()), usage.NewLedger(st), nil, 1<<20)
	h := NewDocumentHandler(p, 1<<20)

	r := chi.NewRouter()
	r.Use(withUser(user))
	r.Post("/upload", h.Upload)
	r.Post("/documents/{id}/refine", h.Refine)
	return r
}

func multipartPDF(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="notes.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("%PDF-1.4 test bytes"))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadReturnsDocumentObject(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	r := newDocumentsRouter(t, st, user)

	body, contentType := multipartPDF(t)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The response body is the document itself, not a wrapper.
	var doc models.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ID == uuid.Nil || doc.Filename != "notes.pdf" {
		t.Fatalf("document = %+v", doc)
	}
}

func TestRefineResponseUsesLowercaseKeys(t *testing.T) {
	st := store.NewMemoryStore()
	user := seedUser(t, st)
	r := newDocumentsRouter(t, st, user)

	body, contentType := multipartPDF(t)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var doc models.Document
	json.Unmarshal(rec.Body.Bytes(), &doc)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents/"+doc.ID.String()+"/refine", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("refine status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for _, key := range []string{`"flashcards":`, `"quiz":`} {
		if !bytes.Contains(rec.Body.Bytes(), []byte(key)) {
			t.Fatalf("refine body missing %s: %s", key, rec.Body.String())
		}
	}
}
