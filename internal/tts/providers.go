package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode"
)

// --- Piper backend (local neural TTS via piper-tts, returns WAV) ---

type piperProvider struct {
	url    string
	voice  string
	client *http.Client
}

// NewPiperProvider creates a provider for a local piper-tts sidecar. Piper
// returns audio only; the viseme track is left empty.
func NewPiperProvider(url, voice string, client *http.Client) Provider {
	return &piperProvider{url: url, voice: voice, client: client}
}

func (p *piperProvider) Name() string { return "piper" }

func (p *piperProvider) Synthesize(ctx context.Context, req Request) (*SpeechData, error) {
	voice := p.voice
	if req.Voice.VoiceID != "" {
		voice = req.Voice.VoiceID
	}
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: req.Text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	audio, err := doAudioRequest(p.client, httpReq, "piper")
	if err != nil {
		return nil, err
	}
	return &SpeechData{Audio: audio, ContentType: "audio/wav"}, nil
}

// --- OpenAI-compatible backend (Kokoro, Orpheus — any server exposing /v1/audio/speech) ---

type openaiSpeechProvider struct {
	name   string
	url    string
	model  string
	voice  string
	client *http.Client
}

// NewOpenAISpeechProvider creates a provider for any server exposing the
// OpenAI /v1/audio/speech surface. Audio only, no timing metadata.
func NewOpenAISpeechProvider(name, url, model, voice string, client *http.Client) Provider {
	return &openaiSpeechProvider{name: name, url: url, model: model, voice: voice, client: client}
}

func (o *openaiSpeechProvider) Name() string { return o.name }

func (o *openaiSpeechProvider) Synthesize(ctx context.Context, req Request) (*SpeechData, error) {
	voice := o.voice
	if req.Voice.VoiceID != "" {
		voice = req.Voice.VoiceID
	}
	body, err := json.Marshal(struct {
		Input          string  `json:"input"`
		Model          string  `json:"model"`
		Voice          string  `json:"voice"`
		Speed          float64 `json:"speed,omitempty"`
		ResponseFormat string  `json:"response_format"`
	}{Input: req.Text, Model: o.model, Voice: voice, Speed: req.Voice.Speed, ResponseFormat: "wav"})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	audio, err := doAudioRequest(o.client, httpReq, o.name)
	if err != nil {
		return nil, err
	}
	return &SpeechData{Audio: audio, ContentType: "audio/wav"}, nil
}

// --- ElevenLabs backend (cloud API with character timestamps for lip-sync) ---

type elevenlabsProvider struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

// NewElevenLabsProvider creates a provider for the ElevenLabs
// with-timestamps endpoint. Character alignment from the response is mapped
// onto a viseme track for the avatar.
func NewElevenLabsProvider(apiKey, voiceID, modelID string, client *http.Client) Provider {
	return &elevenlabsProvider{apiKey: apiKey, voiceID: voiceID, modelID: modelID, client: client}
}

func (e *elevenlabsProvider) Name() string { return "elevenlabs" }

func (e *elevenlabsProvider) Synthesize(ctx context.Context, req Request) (*SpeechData, error) {
	voiceID := e.voiceID
	if req.Voice.VoiceID != "" {
		voiceID = req.Voice.VoiceID
	}
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: req.Text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s/with-timestamps", voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		AudioBase64 string `json:"audio_base64"`
		Alignment   struct {
			Characters []string  `json:"characters"`
			StartTimes []float64 `json:"character_start_times_seconds"`
		} `json:"alignment"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode elevenlabs response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode elevenlabs audio: %w", err)
	}

	return &SpeechData{
		Audio:       audio,
		ContentType: "audio/mpeg",
		Visemes:     visemesFromAlignment(parsed.Alignment.Characters, parsed.Alignment.StartTimes),
	}, nil
}

// visemesFromAlignment maps character timing onto coarse mouth shapes.
// Consecutive identical visemes are collapsed so the track stays small.
func visemesFromAlignment(chars []string, startTimes []float64) []VisemeFrame {
	n := len(chars)
	if len(startTimes) < n {
		n = len(startTimes)
	}

	var frames []VisemeFrame
	last := ""
	for i := 0; i < n; i++ {
		v := visemeForChar(chars[i])
		if v == last {
			continue
		}
		last = v
		frames = append(frames, VisemeFrame{TimeMs: startTimes[i] * 1000, Viseme: v, Weight: 1.0})
	}
	return frames
}

func visemeForChar(s string) string {
	if s == "" {
		return "silent"
	}
	r := unicode.ToLower([]rune(s)[0])
	switch r {
	case 'a':
		return "aa"
	case 'e':
		return "ee"
	case 'i', 'y':
		return "ii"
	case 'o':
		return "oo"
	case 'u', 'w':
		return "uu"
	case 'f', 'v':
		return "fv"
	case 'm', 'b', 'p':
		return "mbp"
	case 'l', 'r':
		return "l"
	case 's', 'z', 'c', 't', 'd', 'n', 'g', 'k', 'q', 'j', 'x', 'h':
		return "cons"
	default:
		return "silent"
	}
}

func doAudioRequest(client *http.Client, req *http.Request, label string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s status %d: %s", label, resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s audio: %w", label, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%s returned empty audio", label)
	}
	return audio, nil
}
