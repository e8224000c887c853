package tts

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// Service is the synthesis front door: fingerprint, cache lookup, breaker-
// guarded provider failover, optional compression, cache store, telemetry.
// Concurrent misses for the same fingerprint are not deduplicated; both may
// reach a provider and the last cache writer wins, which is safe because
// identical inputs produce equivalent entries.
type Service struct {
	chain    *Chain
	cache    *Cache
	comp     *Compressor
	recorder Recorder
}

// NewService wires the synthesis pipeline. recorder may be nil.
func NewService(chain *Chain, cache *Cache, comp *Compressor, recorder Recorder) *Service {
	return &Service{chain: chain, cache: cache, comp: comp, recorder: recorder}
}

// Synthesize runs one synthesis call for sessionID, seq identifying the
// frame's position within the utterance. profile selects the provider
// preference ordering.
func (s *Service) Synthesize(ctx context.Context, req Request, profile, sessionID string, seq int) (*Result, error) {
	if utf8.RuneCountInString(req.Text) >= MaxTextChars {
		metrics.SynthRequests.WithLabelValues("error").Inc()
		metrics.Errors.WithLabelValues("tts", "too_long").Inc()
		return nil, ErrTextTooLong
	}

	start := time.Now()
	key := Fingerprint(req)

	if entry, ok := s.cache.Get(key); ok {
		metrics.SynthRequests.WithLabelValues("hit").Inc()
		s.record(Attempt{
			SessionID:       sessionID,
			Sequence:        seq,
			TextLen:         len(req.Text),
			Language:        req.Language,
			CacheHit:        true,
			Compressed:      entry.Compressed,
			LatencyMs:       msSince(start),
			OriginalBytes:   entry.OriginalBytes,
			CompressedBytes: len(entry.Audio),
		})
		return &Result{
			Audio:       entry.Audio,
			ContentType: entry.ContentType,
			Encoding:    entry.Encoding,
			Visemes:     entry.Visemes,
			CacheHit:    true,
			Compressed:  entry.Compressed,
			LatencyMs:   msSince(start),
		}, nil
	}

	data, provider, err := s.chain.Synthesize(ctx, req, profile)
	if err != nil {
		metrics.SynthRequests.WithLabelValues("error").Inc()
		metrics.Errors.WithLabelValues("tts", "generate").Inc()
		return nil, err
	}

	originalBytes := len(data.Audio)
	audio, compressed := s.comp.Compress(data.Audio)
	encoding := ""
	if compressed {
		encoding = CompressEncoding
	}

	// The original bytes are discarded here; only the delivered
	// representation is cached, so hits are byte-identical with what the
	// first caller received.
	s.cache.Set(key, CacheEntry{
		Audio:         audio,
		ContentType:   data.ContentType,
		Encoding:      encoding,
		Visemes:       data.Visemes,
		Compressed:    compressed,
		OriginalBytes: originalBytes,
	})

	latency := time.Since(start)
	metrics.SynthRequests.WithLabelValues("generated").Inc()
	metrics.SynthLatency.Observe(latency.Seconds())

	s.record(Attempt{
		SessionID:       sessionID,
		Sequence:        seq,
		TextLen:         len(req.Text),
		Language:        req.Language,
		Compressed:      compressed,
		LatencyMs:       float64(latency.Milliseconds()),
		OriginalBytes:   originalBytes,
		CompressedBytes: len(audio),
	})

	return &Result{
		Audio:       audio,
		ContentType: data.ContentType,
		Encoding:    encoding,
		Visemes:     data.Visemes,
		Compressed:  compressed,
		Provider:    provider,
		LatencyMs:   float64(latency.Milliseconds()),
	}, nil
}

// Cache exposes the cache for diagnostics routes.
func (s *Service) Cache() *Cache { return s.cache }

// ProviderHealth exposes breaker-derived provider availability.
func (s *Service) ProviderHealth() []BreakerSnapshot { return s.chain.Health() }

func (s *Service) record(a Attempt) {
	if s.recorder != nil {
		s.recorder.RecordSynthesis(a)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
