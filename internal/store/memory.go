package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/models"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without a database; the mutex gives it the same per-pair serialization
// the postgres implementation gets from its unique index.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	subjects    map[string]uuid.UUID
	documents   map[uuid.UUID]*models.Document
	docOrder    []uuid.UUID
	collections map[uuid.UUID]*models.Collection
	collOrder   []uuid.UUID
	turns       map[threadKey][]models.Turn
	payments    map[string]models.PaymentEvent
}

type threadKey struct {
	documentID uuid.UUID
	userID     uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*models.User),
		subjects:    make(map[string]uuid.UUID),
		documents:   make(map[uuid.UUID]*models.Document),
		collections: make(map[uuid.UUID]*models.Collection),
		turns:       make(map[threadKey][]models.Turn),
		payments:    make(map[string]models.PaymentEvent),
	}
}

func (m *MemoryStore) UpsertUserBySubject(_ context.Context, subject, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.subjects[subject]; ok {
		u := m.users[id]
		u.Email = email
		u.UpdatedAt = time.Now().UTC()
		cp := *u
		return &cp, nil
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:        uuid.New(),
		Subject:   subject,
		Email:     email,
		Tier:      models.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.users[u.ID] = u
	m.subjects[subject] = u.ID
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SetUserTier(_ context.Context, id uuid.UUID, tier models.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Tier = tier
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) IncrementDocumentsUsed(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.DocumentsUsed++
	u.UpdatedAt = time.Now().UTC()
	return u.DocumentsUsed, nil
}

func (m *MemoryStore) IncrementMessagesUsed(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.MessagesUsed++
	u.UpdatedAt = time.Now().UTC()
	return u.MessagesUsed, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	cp := *doc
	m.documents[doc.ID] = &cp
	m.docOrder = append(m.docOrder, doc.ID)
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, userID, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok || d.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, userID uuid.UUID) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterDocuments(func(d *models.Document) bool {
		return d.UserID == userID
	}), nil
}

func (m *MemoryStore) ListDocumentsByCollection(_ context.Context, userID, collectionID uuid.UUID) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterDocuments(func(d *models.Document) bool {
		return d.UserID == userID && d.CollectionID != nil && *d.CollectionID == collectionID
	}), nil
}

func (m *MemoryStore) filterDocuments(keep func(*models.Document) bool) []models.Document {
	res := []models.Document{}
	for _, id := range m.docOrder {
		if d, ok := m.documents[id]; ok && keep(d) {
			res = append(res, *d)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

func (m *MemoryStore) UpdateStudyMaterials(_ context.Context, userID, id uuid.UUID, cards []models.Flashcard, quiz []models.QuizQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok || d.UserID != userID {
		return ErrNotFound
	}
	d.Flashcards = append([]models.Flashcard(nil), cards...)
	d.Quiz = append([]models.QuizQuestion(nil), quiz...)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CreateCollection(_ context.Context, c *models.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.collections[c.ID] = &cp
	m.collOrder = append(m.collOrder, c.ID)
	return nil
}

func (m *MemoryStore) GetCollection(_ context.Context, userID, id uuid.UUID) (*models.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCollections(_ context.Context, userID uuid.UUID) ([]models.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []models.Collection{}
	for _, id := range m.collOrder {
		if c, ok := m.collections[id]; ok && c.UserID == userID {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (m *MemoryStore) UpdateCollection(_ context.Context, c *models.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.collections[c.ID]
	if !ok || existing.UserID != c.UserID {
		return ErrNotFound
	}
	existing.Name = c.Name
	existing.Description = c.Description
	existing.Color = c.Color
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.collections, id)
	for _, d := range m.documents {
		if d.UserID == userID && d.CollectionID != nil && *d.CollectionID == id {
			d.CollectionID = nil
			d.UpdatedAt = time.Now().UTC()
		}
	}
	filtered := m.collOrder[:0]
	for _, cid := range m.collOrder {
		if cid != id {
			filtered = append(filtered, cid)
		}
	}
	m.collOrder = filtered
	return nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, t *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := threadKey{documentID: t.DocumentID, userID: t.UserID}
	thread := m.turns[key]
	next := 1
	if len(thread) > 0 {
		next = thread[len(thread)-1].Seq + 1
	}
	t.Seq = next
	t.CreatedAt = time.Now().UTC()
	m.turns[key] = append(thread, *t)
	return nil
}

func (m *MemoryStore) ListTurns(_ context.Context, userID, documentID uuid.UUID) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread := m.turns[threadKey{documentID: documentID, userID: userID}]
	return append([]models.Turn{}, thread...), nil
}

func (m *MemoryStore) RecentTurns(_ context.Context, userID, documentID uuid.UUID, n int) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread := m.turns[threadKey{documentID: documentID, userID: userID}]
	if n > 0 && len(thread) > n {
		thread = thread[len(thread)-n:]
	}
	return append([]models.Turn{}, thread...), nil
}

func (m *MemoryStore) ApplyPaymentEvent(_ context.Context, ev models.PaymentEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.payments[ev.EventID]; seen {
		return false, nil
	}
	u, ok := m.users[ev.UserID]
	if !ok {
		return false, ErrNotFound
	}
	ev.ProcessedAt = time.Now().UTC()
	m.payments[ev.EventID] = ev
	u.Tier = ev.Tier
	u.UpdatedAt = ev.ProcessedAt
	return true, nil
}
