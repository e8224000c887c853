package telemetry

import (
	"log/slog"

	"github.com/tutorstack/voice-gateway/internal/tts"
)

// Recorder writes synthesis telemetry asynchronously through a buffered
// channel so the hot path never waits on the database. All methods are
// nil-safe (no-op on nil receiver); a full buffer drops the record with a
// warning rather than blocking.
type Recorder struct {
	store *Store
	ch    chan SynthesisRecord
	done  chan struct{}
}

// NewRecorder starts a recorder draining into store. Call Close on shutdown
// to flush the buffer.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan SynthesisRecord, 256),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.ch {
		if err := r.store.InsertSynthesis(rec); err != nil {
			slog.Warn("synthesis telemetry write failed", "error", err)
		}
	}
}

// RecordSynthesis implements tts.Recorder.
func (r *Recorder) RecordSynthesis(a tts.Attempt) {
	if r == nil {
		return
	}
	rec := SynthesisRecord{
		SessionID:       a.SessionID,
		Sequence:        a.Sequence,
		TextLen:         a.TextLen,
		Language:        a.Language,
		CacheHit:        a.CacheHit,
		Compressed:      a.Compressed,
		LatencyMs:       a.LatencyMs,
		OriginalBytes:   a.OriginalBytes,
		CompressedBytes: a.CompressedBytes,
	}
	select {
	case r.ch <- rec:
	default:
		slog.Warn("synthesis telemetry buffer full, dropping record", "session_id", a.SessionID)
	}
}

// Close flushes buffered records and stops the drain goroutine.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
}
