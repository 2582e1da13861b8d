package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/llm"
	"github.com/studywise/backend/internal/models"
)

type fakeLLM struct {
	content string
	err     error
	gotReq  llm.ChatRequest
}

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}

func (f *fakeLLM) Provider(string) (llm.Provider, error) { return nil, nil }

func newTestGateway(f *fakeLLM) *Gateway {
	return NewGateway(f,
		config.LLMConfig{DefaultModel: "gpt-4o-mini"},
		config.EnrichConfig{ExcerptBudget: 4000, HistoryWindow: 10})
}

const validMaterialsJSON = `{
	"flashcards": [{"question": "What is X?", "answer": "Y"}],
	"quiz": [{
		"question": "Pick one",
		"options": ["a", "b", "c", "d"],
		"correct_index": 2,
		"explanation": "because"
	}]
}`

func TestGenerateStudyMaterials(t *testing.T) {
	f := &fakeLLM{content: validMaterialsJSON}
	g := newTestGateway(f)

	got, err := g.GenerateStudyMaterials(context.Background(), "text", "summary")
	if err != nil {
		t.Fatalf("GenerateStudyMaterials() error: %v", err)
	}
	if len(got.Flashcards) != 1 || got.Flashcards[0].Question != "What is X?" {
		t.Fatalf("flashcards = %+v", got.Flashcards)
	}
	if len(got.Quiz) != 1 || got.Quiz[0].CorrectIndex != 2 {
		t.Fatalf("quiz = %+v", got.Quiz)
	}
}

func TestGenerateStudyMaterialsStripsMarkdownFences(t *testing.T) {
	f := &fakeLLM{content: "```json\n" + validMaterialsJSON + "\n```"}
	g := newTestGateway(f)

	if _, err := g.GenerateStudyMaterials(context.Background(), "text", "summary"); err != nil {
		t.Fatalf("fenced JSON rejected: %v", err)
	}
}

func TestGenerateStudyMaterialsSchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I could not produce JSON, sorry"},
		{"empty flashcards", `{"flashcards": [], "quiz": [{"question": "q", "options": ["a","b","c","d"], "correct_index": 0}]}`},
		{"empty quiz", `{"flashcards": [{"question": "q", "answer": "a"}], "quiz": []}`},
		{"three options", `{"flashcards": [{"question": "q", "answer": "a"}], "quiz": [{"question": "q", "options": ["a","b","c"], "correct_index": 0}]}`},
		{"five options", `{"flashcards": [{"question": "q", "answer": "a"}], "quiz": [{"question": "q", "options": ["a","b","c","d","e"], "correct_index": 0}]}`},
		{"index out of range", `{"flashcards": [{"question": "q", "answer": "a"}], "quiz": [{"question": "q", "options": ["a","b","c","d"], "correct_index": 4}]}`},
		{"negative index", `{"flashcards": [{"question": "q", "answer": "a"}], "quiz": [{"question": "q", "options": ["a","b","c","d"], "correct_index": -1}]}`},
		{"flashcard missing answer", `{"flashcards": [{"question": "q", "answer": ""}], "quiz": [{"question": "q", "options": ["a","b","c","d"], "correct_index": 0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(&fakeLLM{content: tt.content})
			_, err := g.GenerateStudyMaterials(context.Background(), "text", "summary")
			if !apperr.Is(err, apperr.KindGatewaySchemaInvalid) {
				t.Fatalf("got %v, want GatewaySchemaInvalid", err)
			}
		})
	}
}

func TestSummarizeRejectsUnreadablePDF(t *testing.T) {
	g := newTestGateway(&fakeLLM{})

	_, err := g.Summarize(context.Background(), []byte("not a pdf"), "junk.pdf")
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("Summarize(garbage) = %v, want InvalidInput", err)
	}
}

func TestBuildConverseMessagesTruncatesExcerpt(t *testing.T) {
	f := &fakeLLM{}
	g := newTestGateway(f)

	long := strings.Repeat("a", 4001)
	msgs := g.BuildConverseMessages(long, nil, "question")

	system := msgs[0].Content
	if !strings.Contains(system, truncationMarker) {
		t.Fatal("truncated excerpt is missing the truncation marker")
	}
	if strings.Contains(system, long) {
		t.Fatal("full document text leaked into the excerpt")
	}

	// Text within budget passes through unmarked.
	short := strings.Repeat("a", 4000)
	msgs = g.BuildConverseMessages(short, nil, "question")
	if strings.Contains(msgs[0].Content, truncationMarker) {
		t.Fatal("in-budget text must not be marked truncated")
	}
}

func TestBuildConverseMessagesWindowAndOrder(t *testing.T) {
	g := newTestGateway(&fakeLLM{})

	var history []models.Turn
	for i := 1; i <= 15; i++ {
		role := models.RoleUser
		if i%2 == 0 {
			role = models.RoleAssistant
		}
		history = append(history, models.Turn{Role: role, Content: strings.Repeat("x", i), Seq: i})
	}

	msgs := g.BuildConverseMessages("doc", history, "new question")

	// system + 10 windowed turns + the new message
	if len(msgs) != 12 {
		t.Fatalf("built %d messages, want 12", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("first message role = %q", msgs[0].Role)
	}
	// Window keeps the most recent turns, oldest-first.
	if msgs[1].Content != history[5].Content {
		t.Fatalf("window starts at %q, want %q", msgs[1].Content, history[5].Content)
	}
	if msgs[10].Content != history[14].Content {
		t.Fatalf("window ends at %q, want %q", msgs[10].Content, history[14].Content)
	}
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleUser || last.Content != "new question" {
		t.Fatalf("final message = %+v", last)
	}
}

func TestConverseMapsTransportErrors(t *testing.T) {
	g := newTestGateway(&fakeLLM{err: context.DeadlineExceeded})

	_, err := g.Converse(context.Background(), "doc", nil, "q")
	if !apperr.Is(err, apperr.KindGatewayTransient) {
		t.Fatalf("timeout mapped to %v, want GatewayTransient", err)
	}
}

func TestRetryTransient(t *testing.T) {
	t.Run("retries transient once", func(t *testing.T) {
		calls := 0
		got, err := RetryTransient(context.Background(), func() (string, error) {
			calls++
			if calls == 1 {
				return "", apperr.New(apperr.KindGatewayTransient, "timeout")
			}
			return "ok", nil
		})
		if err != nil || got != "ok" {
			t.Fatalf("got (%q, %v)", got, err)
		}
		if calls != 2 {
			t.Fatalf("fn called %d times, want 2", calls)
		}
	})

	t.Run("does not retry permanent", func(t *testing.T) {
		calls := 0
		_, err := RetryTransient(context.Background(), func() (string, error) {
			calls++
			return "", apperr.New(apperr.KindGatewaySchemaInvalid, "bad shape")
		})
		if !apperr.Is(err, apperr.KindGatewaySchemaInvalid) {
			t.Fatalf("got %v", err)
		}
		if calls != 1 {
			t.Fatalf("fn called %d times, want 1", calls)
		}
	})

	t.Run("gives up after second transient failure", func(t *testing.T) {
		calls := 0
		_, err := RetryTransient(context.Background(), func() (string, error) {
			calls++
			return "", apperr.New(apperr.KindGatewayTransient, "still down")
		})
		if !apperr.Is(err, apperr.KindGatewayTransient) {
			t.Fatalf("got %v", err)
		}
		if calls != 2 {
			t.Fatalf("fn called %d times, want 2", calls)
		}
	})
}
