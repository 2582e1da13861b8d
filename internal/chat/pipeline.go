// Package chat orchestrates document-scoped conversation turns: quota
// check, user-turn persistence, bounded context assembly, the LLM call,
// assistant-turn persistence, then the usage counter. A gateway failure
// never rolls back the user's message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/cache"
	"github.com/studywise/backend/internal/enrich"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/store"
	"github.com/studywise/backend/internal/usage"
)

// Converser is the slice of the enrichment gateway the chat path uses.
type Converser interface {
	Converse(ctx context.Context, docText string, history []models.Turn, newMessage string) (string, error)
}

type Pipeline struct {
	store         store.Store
	enricher      Converser
	policy        *quota.Policy
	ledger        *usage.Ledger
	cache         *cache.Cache // nil disables document-text caching
	cacheTTL      time.Duration
	historyWindow int
}

func NewPipeline(s store.Store, e Converser, p *quota.Policy, l *usage.Ledger, c *cache.Cache, cacheTTL time.Duration, historyWindow int) *Pipeline {
	return &Pipeline{
		store:         s,
		enricher:      e,
		policy:        p,
		ledger:        l,
		cache:         c,
		cacheTTL:      cacheTTL,
		historyWindow: historyWindow,
	}
}

// TurnPair is the result of one accepted send: the persisted user turn and
// the generated assistant turn, plus the updated message counter.
type TurnPair struct {
	UserTurn      models.Turn `json:"userTurn"`
	AssistantTurn models.Turn `json:"assistantTurn"`
	MessagesUsed  int         `json:"usage"`
}

// SendTurn processes one user message against a document.
func (p *Pipeline) SendTurn(ctx context.Context, user *models.User, docID uuid.UUID, text string) (*TurnPair, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "message content is required")
	}

	if err := p.policy.Check(user, quota.OpMessage); err != nil {
		return nil, err
	}

	// Ownership is established here, before any turn row is written.
	docText, err := p.documentText(ctx, user.ID, docID)
	if err != nil {
		return nil, err
	}

	userTurn := models.Turn{
		ID:         uuid.New(),
		DocumentID: docID,
		UserID:     user.ID,
		Role:       models.RoleUser,
		Content:    text,
	}
	if err := p.store.AppendTurn(ctx, &userTurn); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "persist user turn", err)
	}

	history, err := p.priorTurns(ctx, user.ID, docID, userTurn.Seq)
	if err != nil {
		return nil, err
	}

	reply, err := enrich.RetryTransient(ctx, func() (string, error) {
		return p.enricher.Converse(ctx, docText, history, text)
	})
	if err != nil {
		// The user turn stays; only the reply is missing and nothing
		// was counted.
		return nil, err
	}

	assistantTurn := models.Turn{
		ID:         uuid.New(),
		DocumentID: docID,
		UserID:     user.ID,
		Role:       models.RoleAssistant,
		Content:    reply,
	}
	if err := p.store.AppendTurn(ctx, &assistantTurn); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "persist assistant turn", err)
	}
	if assistantTurn.Seq != userTurn.Seq+1 {
		slog.Warn("assistant turn sequence not adjacent to user turn",
			"document_id", docID, "user_seq", userTurn.Seq, "assistant_seq", assistantTurn.Seq)
	}

	used, err := p.ledger.Increment(ctx, user.ID, quota.OpMessage)
	if err != nil {
		// Both turns are persisted; an increment failure undercounts
		// rather than failing the send.
		slog.Error("usage increment failed after turn persist",
			"document_id", docID, "user_id", user.ID, "error", err)
		used = user.MessagesUsed + 1
	}

	return &TurnPair{
		UserTurn:      userTurn,
		AssistantTurn: assistantTurn,
		MessagesUsed:  used,
	}, nil
}

// ListTurns returns the full thread for a document, sequence ascending.
func (p *Pipeline) ListTurns(ctx context.Context, user *models.User, docID uuid.UUID) ([]models.Turn, error) {
	turns, err := p.store.ListTurns(ctx, user.ID, docID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list turns", err)
	}
	return turns, nil
}

// priorTurns loads the sliding context window: the most recent turns that
// precede the just-persisted user turn, oldest-first.
func (p *Pipeline) priorTurns(ctx context.Context, userID, docID uuid.UUID, beforeSeq int) ([]models.Turn, error) {
	turns, err := p.store.RecentTurns(ctx, userID, docID, p.historyWindow+1)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "load recent turns", err)
	}
	prior := turns[:0]
	for _, t := range turns {
		if t.Seq < beforeSeq {
			prior = append(prior, t)
		}
	}
	if len(prior) > p.historyWindow {
		prior = prior[len(prior)-p.historyWindow:]
	}
	return prior, nil
}

// documentText returns the document's extracted text, served from a
// short-TTL cache when possible. The key includes the owner so a cache hit
// always implies an ownership check passed within the TTL.
func (p *Pipeline) documentText(ctx context.Context, userID, docID uuid.UUID) (string, error) {
	key := fmt.Sprintf("doctext:%s:%s", userID, docID)

	if p.cache != nil {
		var text string
		hit, err := p.cache.Get(ctx, key, &text)
		if err != nil {
			slog.Warn("document text cache read failed", "error", err)
		} else if hit {
			return text, nil
		}
	}

	doc, err := p.store.GetDocument(ctx, userID, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.New(apperr.KindNotFound, "document not found")
		}
		return "", apperr.Wrap(apperr.KindPersistence, "load document", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, doc.ExtractedText, p.cacheTTL); err != nil {
			slog.Warn("document text cache write failed", "error", err)
		}
	}
	return doc.ExtractedText, nil
}
