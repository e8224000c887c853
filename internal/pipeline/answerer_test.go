package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaAnswerer(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"  Gravity pulls masses together.  "}}`))
	}))
	defer srv.Close()

	a := NewOllamaAnswerer(srv.URL, "llama3.2:3b", 2)
	ans, err := a.Answer(context.Background(), "what is gravity?", "en", "You are a tutor.")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if ans.Text != "Gravity pulls masses together." {
		t.Fatalf("Text = %q, want the trimmed content", ans.Text)
	}
	if gotReq.Model != "llama3.2:3b" || gotReq.Stream {
		t.Fatalf("request = %+v, want the model with streaming off", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "what is gravity?" {
		t.Fatalf("messages = %+v, want system prompt then the question", gotReq.Messages)
	}
}

func TestOllamaAnswererErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewOllamaAnswerer(srv.URL, "missing", 2)
	if _, err := a.Answer(context.Background(), "q", "", ""); err == nil {
		t.Fatal("non-200 status must surface as an error")
	}
}

type stubAnswerer struct{ text string }

func (s stubAnswerer) Answer(ctx context.Context, question, language, systemPrompt string) (*Answer, error) {
	return &Answer{Text: s.text}, nil
}

func TestAnswerRouterFallback(t *testing.T) {
	r := NewAnswerRouter(map[string]Answerer{
		"ollama": stubAnswerer{text: "from ollama"},
		"openai": stubAnswerer{text: "from openai"},
	}, "ollama")

	ans, err := r.Answer(context.Background(), "q", "", "")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if ans.Text != "from ollama" {
		t.Fatalf("Text = %q, want the fallback backend", ans.Text)
	}

	ans, err = r.AnswerWith(context.Background(), "openai", "q", "", "")
	if err != nil {
		t.Fatalf("AnswerWith() error = %v", err)
	}
	if ans.Text != "from openai" {
		t.Fatalf("Text = %q, want the named backend", ans.Text)
	}

	// Unknown engine routes to the fallback rather than failing.
	ans, err = r.AnswerWith(context.Background(), "ghost", "q", "", "")
	if err != nil || ans.Text != "from ollama" {
		t.Fatalf("AnswerWith(ghost) = %v,%v, want the fallback", ans, err)
	}
}

func TestRouterNoBackend(t *testing.T) {
	r := NewRouter(map[string]Answerer{}, "missing")
	if _, err := r.Route("anything"); err == nil {
		t.Fatal("empty router must fail to route")
	}
	if r.Has("anything") {
		t.Fatal("Has() must be false for an empty router")
	}
}
