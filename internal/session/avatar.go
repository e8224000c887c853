package session

import (
	"errors"
	"sync"
	"time"
)

// AvatarState is the discrete animation state mirrored to the client.
type AvatarState string

const (
	AvatarIdle        AvatarState = "idle"
	AvatarListening   AvatarState = "listening"
	AvatarSpeaking    AvatarState = "speaking"
	AvatarInterrupted AvatarState = "interrupted"
)

var (
	// ErrNotReady means the client has not signaled readiness for speech;
	// the caller should retry once an AVATAR_STATE update flips the flag,
	// not force the transition.
	ErrNotReady = errors.New("avatar cannot accept speech yet")

	// ErrUtteranceActive means a previous utterance is still speaking and
	// has not been interrupted or completed.
	ErrUtteranceActive = errors.New("previous utterance still speaking")
)

// AvatarSnapshot is the tracker's externally visible state.
type AvatarSnapshot struct {
	State          AvatarState `json:"state"`
	CanAcceptTTS   bool        `json:"can_accept_tts"`
	UtteranceID    string      `json:"utterance_id,omitempty"`
	LastTransition time.Time   `json:"last_transition"`
}

// AvatarTracker tracks one session's animation state. It is owned by the
// session but updated from both the read loop (client signals) and delivery
// goroutines, so access is serialized internally. Utterance transitions are
// monotonic: a new utterance is refused while the previous one is speaking
// unless an interrupt supersedes it.
type AvatarTracker struct {
	mu             sync.Mutex
	state          AvatarState
	canAcceptTTS   bool
	utteranceID    string
	lastTransition time.Time

	now func() time.Time
}

// NewAvatarTracker starts in idle with speech acceptance on; clients that
// need warm-up turn it off with their first AVATAR_STATE signal.
func NewAvatarTracker() *AvatarTracker {
	t := &AvatarTracker{state: AvatarIdle, canAcceptTTS: true, now: time.Now}
	t.lastTransition = t.now()
	return t
}

// ApplyClientSignal folds an AVATAR_STATE control message in. Only the
// client-owned states are accepted; speaking is driven server-side.
func (t *AvatarTracker) ApplyClientSignal(state AvatarState, canAcceptTTS bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canAcceptTTS = canAcceptTTS
	switch state {
	case AvatarIdle, AvatarListening:
		t.setState(state)
	}
}

// Listening marks inbound audio arrival. Speaking is not demoted; late audio
// during playback is common and harmless.
func (t *AvatarTracker) Listening() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == AvatarIdle {
		t.setState(AvatarListening)
	}
}

// BeginSpeaking claims the tracker for a new utterance. It fails with
// ErrNotReady when the client has speech acceptance off, and with
// ErrUtteranceActive when a different utterance is still speaking.
func (t *AvatarTracker) BeginSpeaking(utteranceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == AvatarSpeaking && t.utteranceID != utteranceID {
		return ErrUtteranceActive
	}
	if !t.canAcceptTTS {
		return ErrNotReady
	}
	t.utteranceID = utteranceID
	t.setState(AvatarSpeaking)
	return nil
}

// Interrupt supersedes the current utterance. Only meaningful while
// speaking; it returns the interrupted utterance id and whether anything
// was actually interrupted. The interrupted state is momentary: the tracker
// settles back to idle so the next utterance can start without an extra
// client signal.
func (t *AvatarTracker) Interrupt() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != AvatarSpeaking {
		return "", false
	}
	id := t.utteranceID
	t.utteranceID = ""
	t.setState(AvatarInterrupted)
	t.setState(AvatarIdle)
	return id, true
}

// CompleteUtterance returns the tracker to idle when the named utterance
// finishes delivery. A stale id (already superseded or from a closed
// session) is a no-op.
func (t *AvatarTracker) CompleteUtterance(utteranceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != AvatarSpeaking || t.utteranceID != utteranceID {
		return
	}
	t.utteranceID = ""
	t.setState(AvatarIdle)
}

// Reset returns the tracker to its initial state on session teardown.
func (t *AvatarTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.utteranceID = ""
	t.canAcceptTTS = true
	t.setState(AvatarIdle)
}

// Snapshot returns the current state.
func (t *AvatarTracker) Snapshot() AvatarSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return AvatarSnapshot{
		State:          t.state,
		CanAcceptTTS:   t.canAcceptTTS,
		UtteranceID:    t.utteranceID,
		LastTransition: t.lastTransition,
	}
}

// setState must be called with t.mu held.
func (t *AvatarTracker) setState(s AvatarState) {
	if t.state == s {
		return
	}
	t.state = s
	t.lastTransition = t.now()
}
