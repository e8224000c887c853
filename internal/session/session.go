package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the orchestrator lifecycle state of one duplex connection.
type Phase string

const (
	PhaseConnecting     Phase = "CONNECTING"
	PhaseAuthenticating Phase = "AUTHENTICATING"
	PhaseActive         Phase = "ACTIVE"
	PhaseClosing        Phase = "CLOSING"
	PhaseClosed         Phase = "CLOSED"
)

// Session is the per-connection state for one tutoring session. It is owned
// by the connection's goroutines; the registry is the only shared path to
// it. The identity fields are bound exactly once by Activate, after the
// ownership check succeeds, and never re-derived from client data.
type Session struct {
	ID        string
	CreatedAt time.Time

	// Set once by Activate before the read loop starts.
	UserID         string
	ConversationID string
	PersonaID      string
	Language       string

	mu           sync.Mutex
	phase        Phase
	lastActivity time.Time
	audioBuf     [][]byte
	avatar       *AvatarTracker
	utterance    *utterance
}

type utterance struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a session in the CONNECTING phase with a fresh opaque id. The
// handshake advances it through AUTHENTICATING to ACTIVE via SetPhase and
// Activate.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		phase:        PhaseConnecting,
		lastActivity: now,
		avatar:       NewAvatarTracker(),
	}
}

// Activate binds the identity resolved during the handshake and enters the
// ACTIVE phase. Called once, before any frames are consumed.
func (s *Session) Activate(userID, conversationID, personaID, language string) {
	s.UserID = userID
	s.ConversationID = conversationID
	s.PersonaID = personaID
	s.Language = language
	s.SetPhase(PhaseActive)
}

// Avatar returns the session's animation tracker.
func (s *Session) Avatar() *AvatarTracker { return s.avatar }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase advances the lifecycle. CLOSED is terminal.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return
	}
	s.phase = p
}

// Touch refreshes the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// AppendAudio buffers one inbound audio fragment in arrival order.
func (s *Session) AppendAudio(fragment []byte) {
	buf := make([]byte, len(fragment))
	copy(buf, fragment)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuf = append(s.audioBuf, buf)
	s.lastActivity = time.Now()
}

// TakeAudio returns the buffered fragments and clears the buffer, marking
// the end of the inbound turn.
func (s *Session) TakeAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.audioBuf
	s.audioBuf = nil
	return buf
}

// BeginDelivery registers id as the in-flight utterance and returns its
// delivery context. Canceling the context (via Interrupt) stops outbound
// frames only; synthesis calls are scoped to the session, not this context,
// so an interrupted utterance's in-flight generation still completes and
// populates the cache. The avatar tracker's speaking gate guarantees at most
// one delivery at a time, so a previous registration is simply dropped.
func (s *Session) BeginDelivery(parent context.Context, id string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.utterance != nil {
		s.utterance.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.utterance = &utterance{id: id, ctx: ctx, cancel: cancel}
	return ctx
}

// Interrupt cancels the in-flight utterance delivery, if any, and returns
// its id.
func (s *Session) Interrupt() (string, bool) {
	s.mu.Lock()
	u := s.utterance
	s.utterance = nil
	s.mu.Unlock()

	if u == nil {
		return "", false
	}
	u.cancel()
	return u.id, true
}

// FinishUtterance releases the utterance's context once delivery completed.
// Stale ids, e.g. after an interrupt already dropped the utterance, are
// ignored.
func (s *Session) FinishUtterance(id string) {
	s.mu.Lock()
	u := s.utterance
	if u != nil && u.id == id {
		s.utterance = nil
	} else {
		u = nil
	}
	s.mu.Unlock()

	if u != nil {
		u.cancel()
	}
}

// Close transitions to CLOSED, cancels any in-flight utterance, clears
// buffers, and resets the avatar. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	u := s.utterance
	s.utterance = nil
	s.audioBuf = nil
	s.phase = PhaseClosed
	s.mu.Unlock()

	if u != nil {
		u.cancel()
	}
	s.avatar.Reset()
}
