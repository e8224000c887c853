package tts

import (
	"sync"
	"time"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// BreakerState is the health state of one provider.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerSnapshot is a read-only view for the diagnostics endpoint.
type BreakerSnapshot struct {
	Provider    string    `json:"provider"`
	State       string    `json:"state"`
	Available   bool      `json:"available"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Breaker guards calls to a single provider. The only mutation path is the
// Allow/Success/Failure cycle driven by real call outcomes; nothing can
// force a state from outside. State is shared across every preference
// ordering that names the provider.
type Breaker struct {
	mu            sync.Mutex
	name          string
	threshold     int
	cooldown      time.Duration
	state         BreakerState
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	now func() time.Time
}

// NewBreaker creates a closed breaker that opens after threshold consecutive
// failures and allows a single trial call once cooldown has elapsed.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(BreakerClosed))
	return b
}

// Allow reports whether a call may proceed right now. When the cooldown of
// an open breaker has elapsed the caller becomes the single HALF_OPEN trial;
// concurrent callers during the trial are refused.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.transition(BreakerHalfOpen)
		b.trialInFlight = true
		return true
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// Success records a successful call: the failure counter resets and the
// breaker closes.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// Failure records a failed call. A failed HALF_OPEN trial reopens the
// breaker with the counter pinned at the threshold, restarting the cooldown.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen {
		b.failures = b.threshold
		b.trialInFlight = false
		b.transition(BreakerOpen)
		return
	}

	b.failures++
	if b.failures >= b.threshold && b.state != BreakerOpen {
		b.transition(BreakerOpen)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the diagnostics view. Available means a call issued now
// would at least be attempted (closed, or cooled down enough for a trial).
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	available := b.state == BreakerClosed ||
		(b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cooldown) ||
		(b.state == BreakerHalfOpen && !b.trialInFlight)
	return BreakerSnapshot{
		Provider:    b.name,
		State:       b.state.String(),
		Available:   available,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	metrics.BreakerTransitions.WithLabelValues(b.name, to.String()).Inc()
}
