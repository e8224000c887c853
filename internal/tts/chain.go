package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// Profile names for the built-in preference orderings. Different call sites
// order the same provider set differently: interactive avatar speech favors
// quality, quick tool speech favors latency, bulk practice speech favors
// cost. Breaker state is per provider, shared across all orderings.
const (
	ProfileQuality = "quality"
	ProfileLatency = "latency"
	ProfileCost    = "cost"
)

// Chain tries providers in a profile-selected preference order, skipping any
// whose breaker refuses the call, until one succeeds or the list is
// exhausted.
type Chain struct {
	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*Breaker
	orders    map[string][]string
	fallback  []string
}

// NewChain registers the providers and creates one breaker per provider.
// The registration order doubles as the fallback preference ordering until
// SetOrder installs profile-specific ones.
func NewChain(providers []Provider, threshold int, cooldown time.Duration) *Chain {
	c := &Chain{
		providers: make(map[string]Provider, len(providers)),
		breakers:  make(map[string]*Breaker, len(providers)),
		orders:    make(map[string][]string),
	}
	for _, p := range providers {
		c.providers[p.Name()] = p
		c.breakers[p.Name()] = NewBreaker(p.Name(), threshold, cooldown)
		c.fallback = append(c.fallback, p.Name())
	}
	return c
}

// SetOrder installs the preference ordering for a profile. Unknown provider
// names are dropped with a warning rather than failing startup.
func (c *Chain) SetOrder(profile string, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := c.providers[n]; !ok {
			slog.Warn("unknown provider in preference order", "profile", profile, "provider", n)
			continue
		}
		order = append(order, n)
	}
	if len(order) > 0 {
		c.orders[profile] = order
	}
}

// Order returns the effective preference order for a profile.
func (c *Chain) Order(profile string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if order, ok := c.orders[profile]; ok {
		return order
	}
	return c.fallback
}

// Synthesize walks the profile's provider order under breaker guard. Every
// provider error, network timeouts included, counts as a breaker failure.
// When the whole list is exhausted the call fails terminally; there is no
// retry loop.
func (c *Chain) Synthesize(ctx context.Context, req Request, profile string) (*SpeechData, string, error) {
	var lastErr error
	for _, name := range c.Order(profile) {
		c.mu.RLock()
		p := c.providers[name]
		b := c.breakers[name]
		c.mu.RUnlock()

		if !b.Allow() {
			metrics.ProviderCalls.WithLabelValues(name, "skipped").Inc()
			continue
		}

		data, err := p.Synthesize(ctx, req)
		if err != nil {
			b.Failure()
			metrics.ProviderCalls.WithLabelValues(name, "failure").Inc()
			slog.Warn("provider synthesis failed", "provider", name, "error", err)
			lastErr = err
			continue
		}

		b.Success()
		metrics.ProviderCalls.WithLabelValues(name, "success").Inc()
		return data, name, nil
	}

	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, "", ErrAllProvidersFailed
}

// Health returns breaker-derived availability for every registered provider.
func (c *Chain) Health() []BreakerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]BreakerSnapshot, 0, len(c.fallback))
	for _, name := range c.fallback {
		out = append(out, c.breakers[name].Snapshot())
	}
	return out
}
