package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tutorstack/voice-gateway/internal/auth"
	"github.com/tutorstack/voice-gateway/internal/metrics"
	"github.com/tutorstack/voice-gateway/internal/persona"
	"github.com/tutorstack/voice-gateway/internal/pipeline"
	"github.com/tutorstack/voice-gateway/internal/session"
	"github.com/tutorstack/voice-gateway/internal/telemetry"
	"github.com/tutorstack/voice-gateway/internal/tts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConversationStore resolves conversation ownership at connect time. The
// check runs exactly once per session; ownership is never re-derived from
// client-supplied data afterwards.
type ConversationStore interface {
	ConversationOwner(id string) (string, error)
}

// Config holds the shared collaborators for all tutoring sessions.
type Config struct {
	Auth          auth.Authorizer
	Conversations ConversationStore
	Transcriber   pipeline.Transcriber
	Answerer      pipeline.Answerer
	Synth         *tts.Service
	Registry      *session.Registry
	Personas      *persona.Registry

	HeartbeatInterval time.Duration // <0 disables the server-side ping loop
	MaxConcurrent     int
	SpeechProfile     string
	FrameBytes        int
	FrameDelay        time.Duration // pacing between outbound audio frames
	BinaryFrames      bool          // raw binary audio frames instead of base64 JSON
	DefaultLanguage   string
}

// Handler manages WebSocket tutoring sessions with admission control.
type Handler struct {
	cfg Config
	sem chan struct{}
}

// NewHandler creates the session handler, applying defaults for unset
// tunables.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 100
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.SpeechProfile == "" {
		cfg.SpeechProfile = tts.ProfileQuality
	}
	if cfg.FrameBytes <= 0 {
		cfg.FrameBytes = 32 * 1024
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Handler{cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrent)}
}

// ServeHTTP upgrades the connection and runs the session. Returns 503 when
// at capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn, r)
}

func (h *Handler) runSession(conn *websocket.Conn, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fw := newFrameWriter(conn, 32)
	defer fw.shutdown()

	// CONNECTING: the conversation id scopes the session and is required.
	s := session.New()
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		fw.close(closeMissingParam, "missing chatId parameter")
		return
	}

	// AUTHENTICATING: identity comes from the ambient credential only.
	s.SetPhase(session.PhaseAuthenticating)
	userID, err := h.cfg.Auth.Resolve(r)
	if err != nil {
		slog.Info("session auth failed", "error", err)
		fw.close(closeUnauthorized, "unauthorized")
		return
	}
	owner, err := h.cfg.Conversations.ConversationOwner(chatID)
	if errors.Is(err, telemetry.ErrConversationNotFound) {
		fw.close(closeNotFound, "conversation not found")
		return
	}
	if err != nil {
		slog.Error("conversation lookup failed", "chat_id", chatID, "error", err)
		fw.close(websocket.CloseInternalServerErr, "internal error")
		return
	}
	if owner != userID {
		fw.close(closeForbidden, "not the conversation owner")
		return
	}

	p := h.cfg.Personas.Get(r.URL.Query().Get("persona"))
	lang := r.URL.Query().Get("language")
	if lang == "" {
		lang = h.cfg.DefaultLanguage
	}

	s.Activate(userID, chatID, p.ID, lang)
	h.cfg.Registry.Add(s)
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			s.SetPhase(session.PhaseClosing)
			if h.cfg.Registry.Remove(s.ID) {
				metrics.SessionsActive.Dec()
			}
			s.Close()
			cancel()
		})
	}
	defer teardown()

	slog.Info("session started", "session_id", s.ID, "user_id", userID, "chat_id", chatID,
		"persona", p.ID, "language", lang)

	fw.sendJSON(sessionStateMsg{
		Type:          "SESSION_STATE",
		SessionID:     s.ID,
		ChatID:        chatID,
		CurrentPhase:  string(session.PhaseActive),
		PersonaID:     p.ID,
		Language:      lang,
		IsVoiceActive: true,
	})

	if h.cfg.HeartbeatInterval > 0 {
		var pongPending atomic.Bool
		conn.SetReadDeadline(time.Now().Add(3 * h.cfg.HeartbeatInterval))
		conn.SetPongHandler(func(string) error {
			pongPending.Store(false)
			conn.SetReadDeadline(time.Now().Add(3 * h.cfg.HeartbeatInterval))
			return nil
		})
		go h.heartbeat(ctx, conn, fw, &pongPending, s.ID)
	}

	h.readLoop(ctx, conn, s, fw)
	slog.Info("session ended", "session_id", s.ID)
}

// heartbeat pings the connection on a fixed interval. A connection that has
// not acknowledged the previous ping by the time the next one is due is
// terminated; this catches half-open transports that never error locally.
func (h *Handler) heartbeat(ctx context.Context, conn *websocket.Conn, fw *frameWriter, pending *atomic.Bool, sessionID string) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pending.Load() {
				metrics.HeartbeatTimeouts.Inc()
				slog.Warn("heartbeat not acknowledged, terminating", "session_id", sessionID)
				conn.Close()
				return
			}
			pending.Store(true)
			if err := fw.sendPing(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, s *session.Session, fw *frameWriter) {
	for {
		frameType, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", s.ID, "error", err)
			return
		}
		s.Touch()
		h.dispatch(ctx, s, fw, parseInbound(frameType, payload))
	}
}

func (h *Handler) dispatch(ctx context.Context, s *session.Session, fw *frameWriter, in inbound) {
	switch in.Type {
	case msgAudioChunk:
		s.AppendAudio(in.Audio.Data)
		s.Avatar().Listening()
		if in.Audio.IsLast {
			fragments := s.TakeAudio()
			go h.handleTurn(ctx, s, fw, fragments, in.Audio.Format)
		}

	case msgAvatarState:
		h.cfg.Registry.ApplyAvatarSignal(s.ID, in.Avatar.State, in.Avatar.CanAcceptTTS)

	case msgTextQuery:
		lang := in.Query.Language
		if lang == "" {
			lang = s.Language
		}
		go h.answerAndSpeak(ctx, s, fw, in.Query.Text, lang)

	case msgInterrupt:
		metrics.Interrupts.Inc()
		if id, ok := s.Interrupt(); ok {
			slog.Info("utterance interrupted", "session_id", s.ID, "utterance_id", id)
		}
		s.Avatar().Interrupt()

	case msgPing:
		fw.sendJSON(pongMsg{Type: "PONG", Timestamp: time.Now().UnixMilli()})
	}
}

// handleTurn runs one completed inbound audio turn: transcription, then the
// same answer-and-speak path a typed query takes. Failures are reported as
// recoverable errors; the connection stays open.
func (h *Handler) handleTurn(ctx context.Context, s *session.Session, fw *frameWriter, fragments [][]byte, format string) {
	if len(fragments) == 0 {
		return
	}

	tr, err := h.cfg.Transcriber.Transcribe(ctx, fragments, format, s.Language)
	if err != nil {
		slog.Error("transcription failed", "session_id", s.ID, "error", err)
		h.sendError(fw, "TRANSCRIBE_FAILED", "could not transcribe audio", true)
		return
	}
	if tr.Text == "" {
		return
	}

	fw.sendJSON(transcriptMsg{Type: "TRANSCRIPT", Text: tr.Text})
	h.answerAndSpeak(ctx, s, fw, tr.Text, s.Language)
}

func (h *Handler) answerAndSpeak(ctx context.Context, s *session.Session, fw *frameWriter, text, lang string) {
	p := h.cfg.Personas.Get(s.PersonaID)

	ans, err := h.cfg.Answerer.Answer(ctx, text, lang, p.SystemPrompt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("answer failed", "session_id", s.ID, "error", err)
		h.sendError(fw, "ANSWER_FAILED", "could not answer the question", true)
		return
	}

	fw.sendJSON(answerMsg{Type: "ANSWER", Text: ans.Text})
	h.speak(ctx, s, fw, ans.Text, lang, p)
}

// speak synthesizes text sentence by sentence and streams the audio frames
// for one utterance. Delivery is scoped to the utterance context so an
// interrupt halts frames immediately; synthesis itself is scoped to the
// session so interrupted generations still land in the cache.
func (h *Handler) speak(ctx context.Context, s *session.Session, fw *frameWriter, text, lang string, p persona.Persona) {
	utterID := uuid.NewString()
	if err := h.waitForAvatar(ctx, s, utterID); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.sendError(fw, "AVATAR_BUSY", "client is not ready for speech", true)
		return
	}

	uctx := s.BeginDelivery(ctx, utterID)
	defer s.FinishUtterance(utterID)

	started := false
	frameSeq := 0
	for i, sentence := range splitSentences(text) {
		if uctx.Err() != nil {
			return
		}

		res, err := h.cfg.Synth.Synthesize(ctx, tts.Request{
			Text:         sentence,
			Language:     lang,
			Emotion:      p.Emotion,
			Persona:      p.ID,
			Voice:        p.Voice,
			InsertPauses: true,
		}, h.cfg.SpeechProfile, s.ID, i)
		if err != nil {
			slog.Error("synthesis failed", "session_id", s.ID, "utterance_id", utterID, "error", err)
			code := "SYNTH_FAILED"
			if errors.Is(err, tts.ErrTextTooLong) {
				code = "TEXT_TOO_LONG"
			}
			h.sendError(fw, code, "could not synthesize speech", true)
			return
		}

		// An interrupt may have landed while synthesis was in flight. The
		// generation is already cached; nothing more is sent for this
		// utterance.
		if uctx.Err() != nil {
			return
		}

		if !started {
			if err := fw.sendJSON(utteranceStartMsg{
				Type:        "UTTERANCE_START",
				UtteranceID: utterID,
				ContentType: res.ContentType,
				Encoding:    res.Encoding,
			}); err != nil {
				return
			}
			started = true
		}
		if len(res.Visemes) > 0 {
			fw.sendJSON(visemeTrackMsg{Type: "VISEME_TRACK", UtteranceID: utterID, Segment: i, Visemes: res.Visemes})
		}
		if err := h.deliverAudio(uctx, fw, utterID, res.Audio, &frameSeq); err != nil {
			return
		}
	}

	if uctx.Err() != nil {
		return
	}
	fw.sendJSON(utteranceEndMsg{Type: "UTTERANCE_END", UtteranceID: utterID})
	s.Avatar().CompleteUtterance(utterID)
}

// waitForAvatar claims the speaking slot for utterID, retrying while the
// client is not ready or a previous utterance is still draining. Deferred
// rather than forced, per the tracker's contract.
func (h *Handler) waitForAvatar(ctx context.Context, s *session.Session, utterID string) error {
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	for {
		err := s.Avatar().BeginSpeaking(utterID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, session.ErrNotReady) && !errors.Is(err, session.ErrUtteranceActive) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return err
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// deliverAudio chunks one synthesized segment into outbound frames in
// generation order, stopping as soon as the utterance context is canceled.
func (h *Handler) deliverAudio(uctx context.Context, fw *frameWriter, utterID string, audio []byte, frameSeq *int) error {
	for off := 0; off < len(audio); off += h.cfg.FrameBytes {
		if uctx.Err() != nil {
			return uctx.Err()
		}
		end := off + h.cfg.FrameBytes
		if end > len(audio) {
			end = len(audio)
		}
		chunk := audio[off:end]

		if h.cfg.BinaryFrames {
			if err := fw.sendJSON(audioFrameMsg{Type: "AUDIO_FRAME", UtteranceID: utterID, Seq: *frameSeq, Binary: true}); err != nil {
				return err
			}
			if err := fw.sendBinary(chunk); err != nil {
				return err
			}
		} else {
			if err := fw.sendJSON(audioFrameMsg{
				Type:        "AUDIO_FRAME",
				UtteranceID: utterID,
				Seq:         *frameSeq,
				Data:        base64.StdEncoding.EncodeToString(chunk),
			}); err != nil {
				return err
			}
		}
		metrics.FramesSent.Inc()
		*frameSeq++

		if h.cfg.FrameDelay > 0 {
			select {
			case <-uctx.Done():
				return uctx.Err()
			case <-time.After(h.cfg.FrameDelay):
			}
		}
	}
	return nil
}

func (h *Handler) sendError(fw *frameWriter, code, message string, recoverable bool) {
	metrics.Errors.WithLabelValues("session", code).Inc()
	fw.sendJSON(errorMsg{Type: "ERROR", Code: code, Message: message, Recoverable: recoverable})
}
