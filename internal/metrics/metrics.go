package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_sessions_active",
		Help: "Currently active tutoring sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_sessions_total",
		Help: "Total tutoring sessions accepted",
	})

	SynthRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_synth_requests_total",
		Help: "Synthesis requests by outcome",
	}, []string{"outcome"}) // hit, generated, error

	SynthLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_synth_duration_seconds",
		Help:    "End-to-end synthesis latency on cache miss",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	CompressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_compression_ratio",
		Help:    "Compressed size over original size for re-encoded audio",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_cache_evictions_total",
		Help: "Cache entries evicted by capacity or TTL",
	})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_breaker_state",
		Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
	}, []string{"provider"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_breaker_transitions_total",
		Help: "Breaker state transitions per provider",
	}, []string{"provider", "to"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_provider_calls_total",
		Help: "Provider invocations by result",
	}, []string{"provider", "result"})

	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_audio_frames_sent_total",
		Help: "Outbound audio frames delivered to clients",
	})

	Interrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_interrupts_total",
		Help: "Client interrupt signals processed",
	})

	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_heartbeat_timeouts_total",
		Help: "Connections terminated for missing a heartbeat ack",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
