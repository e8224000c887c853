package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// Answerer is the query-answering collaborator: question in, spoken-style
// answer out. Prompt construction beyond the persona system prompt lives on
// the other side of this interface.
type Answerer interface {
	Answer(ctx context.Context, question, language, systemPrompt string) (*Answer, error)
}

// Answer holds the collaborator's response with timing.
type Answer struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// AnswerRouter dispatches to the correct answering backend by engine name.
type AnswerRouter struct {
	*Router[Answerer]
}

// NewAnswerRouter creates a router over the registered answering backends.
func NewAnswerRouter(backends map[string]Answerer, fallback string) *AnswerRouter {
	return &AnswerRouter{Router: NewRouter(backends, fallback)}
}

// Answer routes to the requested backend and asks it the question.
func (r *AnswerRouter) Answer(ctx context.Context, question, language, systemPrompt string) (*Answer, error) {
	backend, err := r.Route("")
	if err != nil {
		return nil, err
	}
	return backend.Answer(ctx, question, language, systemPrompt)
}

// AnswerWith routes to a named engine.
func (r *AnswerRouter) AnswerWith(ctx context.Context, engine, question, language, systemPrompt string) (*Answer, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.Answer(ctx, question, language, systemPrompt)
}

// --- OpenAI backend ---

// OpenAIAnswerer answers questions through the OpenAI chat completions API.
type OpenAIAnswerer struct {
	client openai.Client
	model  string
}

// NewOpenAIAnswerer creates an answerer for the given API key and model.
// baseURL overrides the endpoint for OpenAI-compatible servers; empty means
// the public API.
func NewOpenAIAnswerer(apiKey, baseURL, model string) *OpenAIAnswerer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAnswerer{client: openai.NewClient(opts...), model: model}
}

func (a *OpenAIAnswerer) Answer(ctx context.Context, question, language, systemPrompt string) (*Answer, error) {
	start := time.Now()

	system := systemPrompt
	if language != "" {
		system += " Answer in language: " + language + "."
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(question),
		},
	})
	if err != nil {
		metrics.Errors.WithLabelValues("answer", "openai").Inc()
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.Errors.WithLabelValues("answer", "empty").Inc()
		return nil, fmt.Errorf("openai chat: empty response")
	}

	return &Answer{
		Text:      strings.TrimSpace(resp.Choices[0].Message.Content),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

// --- Ollama backend (local, non-streaming chat) ---

// OllamaAnswerer answers questions through a local Ollama server.
type OllamaAnswerer struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaAnswerer creates an answerer for the Ollama chat API.
func NewOllamaAnswerer(url, model string, poolSize int) *OllamaAnswerer {
	return &OllamaAnswerer{
		url:    url,
		model:  model,
		client: NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

func (a *OllamaAnswerer) Answer(ctx context.Context, question, language, systemPrompt string) (*Answer, error) {
	start := time.Now()

	system := systemPrompt
	if language != "" {
		system += " Answer in language: " + language + "."
	}

	body, err := json.Marshal(map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": question},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("answer", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("answer", "status").Inc()
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err = decodeJSON(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	return &Answer{
		Text:      strings.TrimSpace(parsed.Message.Content),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
