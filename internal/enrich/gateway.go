// Package enrich adapts the LLM gateway to the three enrichment modes the
// pipelines need: document summarization, study-material generation, and
// document-scoped chat. All prompt construction and response-schema
// validation lives here; nothing downstream ever sees an untyped payload.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/llm"
	"github.com/studywise/backend/internal/models"
	"github.com/studywise/backend/pkg/textextract"
)

type Gateway struct {
	llm           llm.Gateway
	model         string
	excerptBudget int
	historyWindow int
}

func NewGateway(gw llm.Gateway, llmCfg config.LLMConfig, enrichCfg config.EnrichConfig) *Gateway {
	return &Gateway{
		llm:           gw,
		model:         llmCfg.DefaultModel,
		excerptBudget: enrichCfg.ExcerptBudget,
		historyWindow: enrichCfg.HistoryWindow,
	}
}

// SummarizeResult is the ingest-mode output.
type SummarizeResult struct {
	Summary string
	Notes   []string
	Text    string
	Pages   int
}

// StudyMaterials is the refinement-mode output.
type StudyMaterials struct {
	Flashcards []models.Flashcard    `json:"flashcards"`
	Quiz       []models.QuizQuestion `json:"quiz"`
}

// Summarize extracts the PDF's text locally and asks the LLM for a summary
// and notes.
func (g *Gateway) Summarize(ctx context.Context, fileBytes []byte, filename string) (*SummarizeResult, error) {
	extracted, err := textextract.ExtractPDF(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, fmt.Sprintf("could not read PDF %q", filename), err)
	}
	if extracted.Content == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "no extractable text in %q", filename)
	}

	content, err := g.call(ctx, []llm.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: truncate(extracted.Content, maxPromptChars)},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Summary string   `json:"summary"`
		Notes   []string `json:"notes"`
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return nil, err
	}
	if parsed.Summary == "" {
		return nil, apperr.New(apperr.KindGatewaySchemaInvalid, "summarize response missing summary")
	}
	if parsed.Notes == nil {
		parsed.Notes = []string{}
	}

	return &SummarizeResult{
		Summary: parsed.Summary,
		Notes:   parsed.Notes,
		Text:    extracted.Content,
		Pages:   extracted.Pages,
	}, nil
}

// GenerateStudyMaterials produces flashcards and a quiz from already-stored
// text and summary.
func (g *Gateway) GenerateStudyMaterials(ctx context.Context, text, summary string) (*StudyMaterials, error) {
	prompt := fmt.Sprintf("Summary:\n%s\n\nDocument text:\n%s", summary, truncate(text, maxPromptChars))

	content, err := g.call(ctx, []llm.Message{
		{Role: "system", Content: studyMaterialsSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Flashcards []models.Flashcard    `json:"flashcards"`
		Quiz       []models.QuizQuestion `json:"quiz"`
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return nil, err
	}
	if err := validateStudyMaterials(parsed.Flashcards, parsed.Quiz); err != nil {
		return nil, err
	}

	return &StudyMaterials{Flashcards: parsed.Flashcards, Quiz: parsed.Quiz}, nil
}

// Converse answers one chat message in the context of a document excerpt
// and a sliding window of recent turns.
func (g *Gateway) Converse(ctx context.Context, docText string, history []models.Turn, newMessage string) (string, error) {
	return g.call(ctx, g.BuildConverseMessages(docText, history, newMessage))
}

// BuildConverseMessages assembles the bounded chat context: system framing
// with a truncated excerpt, then the most recent turns oldest-first, then
// the new message. Exposed so the constructed context is inspectable.
func (g *Gateway) BuildConverseMessages(docText string, history []models.Turn, newMessage string) []llm.Message {
	excerpt := truncate(docText, g.excerptBudget)

	if len(history) > g.historyWindow {
		history = history[len(history)-g.historyWindow:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: fmt.Sprintf(converseSystemPrompt, excerpt)})
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: models.RoleUser, Content: newMessage})
	return msgs
}

// maxPromptChars caps how much raw document text goes into the ingest and
// refinement prompts.
const maxPromptChars = 24000

func (g *Gateway) call(ctx context.Context, msgs []llm.Message) (string, error) {
	resp, err := g.llm.Chat(ctx, llm.ChatRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: 0,
	})
	if err != nil {
		if llm.IsTransient(err) {
			return "", apperr.Wrap(apperr.KindGatewayTransient, "enrichment call failed", err)
		}
		return "", apperr.Wrap(apperr.KindInternal, "enrichment call failed", err)
	}
	return resp.Content, nil
}

// decodeJSON strips markdown fences some models wrap around JSON and
// unmarshals; any parse failure is a schema violation, never retried.
func decodeJSON(content string, dest any) error {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return apperr.Wrap(apperr.KindGatewaySchemaInvalid, "parse enrichment response", err)
	}
	return nil
}

func validateStudyMaterials(cards []models.Flashcard, quiz []models.QuizQuestion) error {
	if len(cards) == 0 {
		return apperr.New(apperr.KindGatewaySchemaInvalid, "response contains no flashcards")
	}
	for i, c := range cards {
		if c.Question == "" || c.Answer == "" {
			return apperr.Newf(apperr.KindGatewaySchemaInvalid, "flashcard %d missing question or answer", i)
		}
	}
	if len(quiz) == 0 {
		return apperr.New(apperr.KindGatewaySchemaInvalid, "response contains no quiz questions")
	}
	for i, q := range quiz {
		if q.Question == "" {
			return apperr.Newf(apperr.KindGatewaySchemaInvalid, "quiz question %d missing text", i)
		}
		if len(q.Options) != 4 {
			return apperr.Newf(apperr.KindGatewaySchemaInvalid, "quiz question %d has %d options, want 4", i, len(q.Options))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex > 3 {
			return apperr.Newf(apperr.KindGatewaySchemaInvalid, "quiz question %d correct_index %d out of range", i, q.CorrectIndex)
		}
	}
	return nil
}

// truncate cuts s to at most budget runes, appending a marker when content
// was dropped.
func truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + truncationMarker
}

// RetryTransient runs fn, retrying exactly once with a short backoff when
// the first attempt fails with a transient gateway error. Permanent errors
// are returned as-is.
func RetryTransient[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	res, err := fn()
	if err == nil || !apperr.Is(err, apperr.KindGatewayTransient) {
		return res, err
	}

	select {
	case <-ctx.Done():
		var zero T
		return zero, apperr.Wrap(apperr.KindGatewayTransient, "enrichment call failed", ctx.Err())
	case <-time.After(retryBackoff):
	}
	return fn()
}

const retryBackoff = 500 * time.Millisecond
