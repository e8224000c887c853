package session

import (
	"context"
	"sync"
	"testing"
)

func newActiveSession(userID, chatID string) *Session {
	s := New()
	s.Activate(userID, chatID, "tutor", "en")
	return s
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := newActiveSession("user-1", "chat-1")

	r.Add(s)
	if got, ok := r.Get(s.ID); !ok || got.UserID != "user-1" {
		t.Fatalf("Get() = %v,%v, want the added session", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	if !r.Remove(s.ID) {
		t.Fatal("first Remove() must report removal")
	}
	if r.Remove(s.ID) {
		t.Fatal("second Remove() must be a no-op")
	}
	if _, ok := r.Get(s.ID); ok {
		t.Fatal("removed session must not be returned")
	}
}

func TestRegistrySessionIsolation(t *testing.T) {
	r := NewRegistry()
	a := newActiveSession("user-a", "chat-a")
	b := newActiveSession("user-b", "chat-b")
	r.Add(a)
	r.Add(b)

	a.AppendAudio([]byte("a-bytes"))
	a.Avatar().BeginSpeaking("u1")

	got, _ := r.Get(b.ID)
	if got.Avatar().Snapshot().State != AvatarIdle {
		t.Fatal("state changes on one session must not leak into another")
	}
	if frags := got.TakeAudio(); len(frags) != 0 {
		t.Fatalf("TakeAudio() on b = %d fragments, want 0", len(frags))
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newActiveSession("user", "chat")
			r.Add(s)
			r.Get(s.ID)
			r.Len()
			r.Remove(s.ID)
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after all goroutines removed their sessions", r.Len())
	}
}

func TestRegistryApplyAvatarSignalUnknownSession(t *testing.T) {
	r := NewRegistry()
	// Must not panic or create an entry.
	r.ApplyAvatarSignal("ghost", AvatarListening, false)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryApplyAvatarSignal(t *testing.T) {
	r := NewRegistry()
	s := newActiveSession("user", "chat")
	r.Add(s)

	r.ApplyAvatarSignal(s.ID, AvatarListening, false)
	snap := s.Avatar().Snapshot()
	if snap.State != AvatarListening || snap.CanAcceptTTS {
		t.Fatalf("snapshot = %+v, want listening with acceptance off", snap)
	}
}

func TestSessionPhaseProgression(t *testing.T) {
	s := New()
	if s.Phase() != PhaseConnecting {
		t.Fatalf("Phase() = %v, want CONNECTING on creation", s.Phase())
	}

	s.SetPhase(PhaseAuthenticating)
	if s.Phase() != PhaseAuthenticating {
		t.Fatalf("Phase() = %v, want AUTHENTICATING", s.Phase())
	}

	s.Activate("user", "chat", "tutor", "en")
	if s.Phase() != PhaseActive {
		t.Fatalf("Phase() = %v, want ACTIVE after Activate", s.Phase())
	}
	if s.UserID != "user" || s.ConversationID != "chat" {
		t.Fatalf("identity = %q/%q, want the activated values", s.UserID, s.ConversationID)
	}

	s.SetPhase(PhaseClosing)
	s.Close()
	if s.Phase() != PhaseClosed {
		t.Fatalf("Phase() = %v, want CLOSED", s.Phase())
	}

	s.SetPhase(PhaseActive)
	if s.Phase() != PhaseClosed {
		t.Fatal("CLOSED must be terminal")
	}
}

func TestSessionInterruptCancelsDelivery(t *testing.T) {
	s := newActiveSession("user", "chat")
	uctx := s.BeginDelivery(context.Background(), "u1")

	id, ok := s.Interrupt()
	if !ok || id != "u1" {
		t.Fatalf("Interrupt() = %q,%v, want u1,true", id, ok)
	}
	select {
	case <-uctx.Done():
	default:
		t.Fatal("interrupt must cancel the delivery context")
	}

	// A second interrupt with nothing in flight reports so.
	if _, ok := s.Interrupt(); ok {
		t.Fatal("Interrupt() with no utterance must report false")
	}
}

func TestSessionFinishUtteranceStaleID(t *testing.T) {
	s := newActiveSession("user", "chat")
	first := s.BeginDelivery(context.Background(), "u1")
	s.FinishUtterance("u1")

	second := s.BeginDelivery(context.Background(), "u2")
	s.FinishUtterance("u1") // stale, must not touch u2

	select {
	case <-second.Done():
		t.Fatal("stale FinishUtterance must not cancel the live delivery")
	default:
	}
	select {
	case <-first.Done():
	default:
		t.Fatal("finished delivery context must be canceled")
	}
}

func TestSessionTakeAudioDrains(t *testing.T) {
	s := newActiveSession("user", "chat")
	s.AppendAudio([]byte("one"))
	s.AppendAudio([]byte("two"))

	frags := s.TakeAudio()
	if len(frags) != 2 || string(frags[0]) != "one" || string(frags[1]) != "two" {
		t.Fatalf("TakeAudio() = %q, want fragments in arrival order", frags)
	}
	if again := s.TakeAudio(); len(again) != 0 {
		t.Fatal("TakeAudio() must drain the buffer")
	}
}
