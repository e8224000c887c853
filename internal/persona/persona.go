// Package persona maps persona ids to voice parameters and tutoring
// system prompts. The active persona shapes both the synthesis fingerprint
// and the query collaborator's instructions.
package persona

import "github.com/tutorstack/voice-gateway/internal/tts"

// Persona is one selectable tutor identity.
type Persona struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"display_name"`
	SystemPrompt string          `json:"-"`
	Emotion      string          `json:"emotion"`
	Voice        tts.VoiceConfig `json:"voice"`
}

// Registry holds the known personas with a default fallback.
type Registry struct {
	personas map[string]Persona
	fallback string
}

// NewRegistry creates a registry from the given personas; the first one is
// the fallback for unknown ids.
func NewRegistry(personas ...Persona) *Registry {
	r := &Registry{personas: make(map[string]Persona, len(personas))}
	for i, p := range personas {
		r.personas[p.ID] = p
		if i == 0 {
			r.fallback = p.ID
		}
	}
	return r
}

// Defaults returns the built-in persona set.
func Defaults() *Registry {
	return NewRegistry(
		Persona{
			ID:          "tutor",
			DisplayName: "Tutor",
			SystemPrompt: "You are a patient, encouraging tutor. Explain concepts step by step " +
				"in plain spoken language, check understanding with short questions, and keep " +
				"each answer under four sentences so it works as speech.",
			Emotion: "warm",
			Voice:   tts.VoiceConfig{VoiceID: "en_US-lessac-medium", Speed: 1.0},
		},
		Persona{
			ID:          "coach",
			DisplayName: "Coach",
			SystemPrompt: "You are an energetic study coach. Keep answers brief, motivating, and " +
				"action-oriented; always end with a concrete next step.",
			Emotion: "upbeat",
			Voice:   tts.VoiceConfig{VoiceID: "en_US-lessac-high", Speed: 1.1},
		},
		Persona{
			ID:          "examiner",
			DisplayName: "Examiner",
			SystemPrompt: "You are a neutral examiner running a practice session. Ask one question " +
				"at a time, give terse feedback, and never reveal answers unprompted.",
			Emotion: "neutral",
			Voice:   tts.VoiceConfig{VoiceID: "en_US-lessac-low", Speed: 0.95},
		},
	)
}

// Get returns the persona for id, falling back to the default.
func (r *Registry) Get(id string) Persona {
	if p, ok := r.personas[id]; ok {
		return p
	}
	return r.personas[r.fallback]
}

// Has reports whether id names a known persona.
func (r *Registry) Has(id string) bool {
	_, ok := r.personas[id]
	return ok
}

// List returns all personas.
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	return out
}
