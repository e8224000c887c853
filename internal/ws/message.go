package ws

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tutorstack/voice-gateway/internal/session"
	"github.com/tutorstack/voice-gateway/internal/tts"
)

// Inbound message kinds. Clients send JSON text frames tagged by "type";
// binary frames and anything that fails structured parsing classify as raw
// audio so heterogeneous client encodings keep working.
const (
	msgAudioChunk  = "AUDIO_CHUNK"
	msgAvatarState = "AVATAR_STATE"
	msgTextQuery   = "TEXT_QUERY"
	msgInterrupt   = "INTERRUPT"
	msgPing        = "PING"
)

// Application close codes for the connection handshake, distinguishable by
// clients from one another and from standard transport codes.
const (
	closeMissingParam = 4000
	closeUnauthorized = 4001
	closeForbidden    = 4003
	closeNotFound     = 4004
)

type audioChunk struct {
	Data   []byte
	Format string
	IsLast bool
}

type avatarSignal struct {
	State        session.AvatarState
	CanAcceptTTS bool
}

type textQuery struct {
	Text     string
	ChatID   string
	Language string
}

// inbound is the closed tagged variant for one parsed client frame. Exactly
// one payload pointer is set, matching Type.
type inbound struct {
	Type   string
	Audio  *audioChunk
	Avatar *avatarSignal
	Query  *textQuery
}

type inboundEnvelope struct {
	Type string `json:"type"`

	// AUDIO_CHUNK
	Data   string `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
	IsLast bool   `json:"isLast,omitempty"`

	// AVATAR_STATE
	State        string `json:"state,omitempty"`
	CanAcceptTTS bool   `json:"canAcceptTTS,omitempty"`

	// TEXT_QUERY
	Text     string `json:"text,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	Language string `json:"language,omitempty"`
}

// parseInbound classifies one WebSocket frame. The fallback branch is
// deliberate: a payload that is binary, not JSON, untyped, or unknown-typed
// is treated as a raw audio fragment rather than rejected.
func parseInbound(frameType int, payload []byte) inbound {
	if frameType != websocket.TextMessage {
		return rawAudio(payload)
	}

	var env inboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == "" {
		return rawAudio(payload)
	}

	switch env.Type {
	case msgAudioChunk:
		data, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return rawAudio(payload)
		}
		return inbound{Type: msgAudioChunk, Audio: &audioChunk{Data: data, Format: env.Format, IsLast: env.IsLast}}
	case msgAvatarState:
		return inbound{Type: msgAvatarState, Avatar: &avatarSignal{
			State:        session.AvatarState(strings.ToLower(env.State)),
			CanAcceptTTS: env.CanAcceptTTS,
		}}
	case msgTextQuery:
		return inbound{Type: msgTextQuery, Query: &textQuery{Text: env.Text, ChatID: env.ChatID, Language: env.Language}}
	case msgInterrupt:
		return inbound{Type: msgInterrupt}
	case msgPing:
		return inbound{Type: msgPing}
	default:
		return rawAudio(payload)
	}
}

func rawAudio(payload []byte) inbound {
	return inbound{Type: msgAudioChunk, Audio: &audioChunk{Data: payload}}
}

// --- Outbound messages ---

type sessionStateMsg struct {
	Type          string `json:"type"` // SESSION_STATE
	SessionID     string `json:"sessionId"`
	ChatID        string `json:"chatId"`
	CurrentPhase  string `json:"currentPhase"`
	PersonaID     string `json:"personaId"`
	Language      string `json:"language"`
	IsVoiceActive bool   `json:"isVoiceActive"`
}

type pongMsg struct {
	Type      string `json:"type"` // PONG
	Timestamp int64  `json:"timestamp"`
}

type errorMsg struct {
	Type        string `json:"type"` // ERROR
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type transcriptMsg struct {
	Type string `json:"type"` // TRANSCRIPT
	Text string `json:"text"`
}

type answerMsg struct {
	Type string `json:"type"` // ANSWER
	Text string `json:"text"`
}

type utteranceStartMsg struct {
	Type        string            `json:"type"` // UTTERANCE_START
	UtteranceID string            `json:"utteranceId"`
	ContentType string            `json:"contentType"`
	Encoding    string            `json:"encoding,omitempty"`
	Visemes     []tts.VisemeFrame `json:"visemes,omitempty"`
}

type visemeTrackMsg struct {
	Type        string            `json:"type"` // VISEME_TRACK
	UtteranceID string            `json:"utteranceId"`
	Segment     int               `json:"segment"`
	Visemes     []tts.VisemeFrame `json:"visemes"`
}

type audioFrameMsg struct {
	Type        string `json:"type"` // AUDIO_FRAME
	UtteranceID string `json:"utteranceId"`
	Seq         int    `json:"seq"`
	Data        string `json:"data,omitempty"` // base64; empty when a binary frame follows
	Binary      bool   `json:"binary,omitempty"`
}

type utteranceEndMsg struct {
	Type        string `json:"type"` // UTTERANCE_END
	UtteranceID string `json:"utteranceId"`
}
