package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// Transcriber turns buffered inbound audio fragments into text. Fragments
// are opaque encoded audio in arrival order; the gateway never inspects
// them.
type Transcriber interface {
	Transcribe(ctx context.Context, fragments [][]byte, format, language string) (*Transcript, error)
}

// Transcript holds the transcription output.
type Transcript struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// WhisperClient sends audio as multipart form data to any whisper-compatible
// HTTP endpoint (/inference for whisper.cpp).
type WhisperClient struct {
	url      string
	endpoint string
	client   *http.Client
}

// NewWhisperClient creates a client for a whisper.cpp style server.
func NewWhisperClient(url string, poolSize int) *WhisperClient {
	return &WhisperClient{
		url:      url,
		endpoint: "/inference",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Transcribe concatenates the fragments into one upload and returns the
// transcript.
func (c *WhisperClient) Transcribe(ctx context.Context, fragments [][]byte, format, language string) (*Transcript, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(fragments, format, language)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return nil, fmt.Errorf("whisper status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err = decodeJSON(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	return &Transcript{
		Text:      parsed.Text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func buildMultipartAudio(fragments [][]byte, format, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := "audio." + format
	if format == "" {
		filename = "audio.bin"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	for _, frag := range fragments {
		if _, err = part.Write(frag); err != nil {
			return nil, "", fmt.Errorf("write audio part: %w", err)
		}
	}
	if language != "" {
		if err = w.WriteField("language", language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
