package session

import "sync"

// Registry is the only shared path to live sessions. Inserts happen on
// connect, deletes on close; lookups during a concurrent delete return
// either the live session or nothing, never a half-removed entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under its id.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters id and reports whether this call removed it. Removal
// is idempotent so teardown paths that race (close frame vs. heartbeat
// timeout) release the entry exactly once.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ApplyAvatarSignal forwards a client avatar signal to the named session's
// tracker. Signals for unknown or already-closed sessions are a no-op, not
// an error; late state updates after disconnect are expected.
func (r *Registry) ApplyAvatarSignal(id string, state AvatarState, canAcceptTTS bool) {
	s, ok := r.Get(id)
	if !ok {
		return
	}
	s.Avatar().ApplyClientSignal(state, canAcceptTTS)
}
