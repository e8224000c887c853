package telemetry

import (
	"testing"

	"github.com/tutorstack/voice-gateway/internal/tts"
)

func TestRecorderNilSafe(t *testing.T) {
	var r *Recorder
	// Both methods must be no-ops on a nil recorder so callers can run
	// without a database.
	r.RecordSynthesis(tts.Attempt{SessionID: "s1"})
	r.Close()
}
