package tts

import (
	"context"
	"errors"
)

// MaxTextChars is the hard ceiling on synthesis input length. Requests at or
// above this length are rejected before any provider is called.
const MaxTextChars = 3000

var (
	ErrTextTooLong        = errors.New("text exceeds synthesis character limit")
	ErrBreakerOpen        = errors.New("provider circuit breaker is open")
	ErrAllProvidersFailed = errors.New("all synthesis providers exhausted")
)

// VoiceConfig holds the provider-relevant voice parameters. It participates
// in the cache fingerprint, so two requests with different voices never
// collide.
type VoiceConfig struct {
	VoiceID string
	Speed   float64
	Pitch   float64
}

// Request describes one synthesis call.
type Request struct {
	Text     string
	Language string
	Emotion  string
	Persona  string
	Voice    VoiceConfig

	// Prosody feature flags.
	MathSpeech   bool
	InsertPauses bool
	Emphasis     bool
}

// VisemeFrame is one timed lip-sync unit aligned to the synthesized audio.
type VisemeFrame struct {
	TimeMs float64 `json:"time_ms"`
	Viseme string  `json:"viseme"`
	Weight float64 `json:"weight"`
}

// SpeechData is the raw provider output before caching and compression.
type SpeechData struct {
	Audio       []byte
	ContentType string
	Visemes     []VisemeFrame
}

// Result is what callers of the synthesis service receive. Audio may be
// compressed; Encoding names the transfer encoding ("" for none, "zstd"
// otherwise). Callers must not assume byte-for-byte provider output.
type Result struct {
	Audio       []byte
	ContentType string
	Encoding    string
	Visemes     []VisemeFrame
	CacheHit    bool
	Compressed  bool
	Provider    string
	LatencyMs   float64
}

// Provider is a single text-to-speech backend. Implementations are stateless
// per call; any error (timeouts included) counts as a failure for breaker
// bookkeeping.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (*SpeechData, error)
}

// Attempt is the per-call telemetry record handed to the Recorder.
type Attempt struct {
	SessionID       string
	Sequence        int
	TextLen         int
	Language        string
	CacheHit        bool
	Compressed      bool
	LatencyMs       float64
	OriginalBytes   int
	CompressedBytes int
}

// Recorder receives one Attempt per synthesis call. Implementations must be
// nil-safe and must never block the synthesis hot path.
type Recorder interface {
	RecordSynthesis(Attempt)
}
