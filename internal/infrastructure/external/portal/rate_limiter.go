package portal

import (
	"context"
	"sync"
	"time"

	"github.com/ipu-results/result-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - token bucket shared by every outbound portal call
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained outbound rate.
	RequestsPerSecond float64
	// Burst is the bucket size.
	Burst int
	// MaxWait bounds how long a caller queues for a token.
	MaxWait time.Duration
}

// DefaultRateLimiterConfig keeps the service a polite portal client.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxWait:           3 * time.Second,
	}
}

// RateLimiter implements the token bucket algorithm.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimiterConfig
	tokens  float64
	updated time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimiterConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		cfg:     cfg,
		tokens:  float64(cfg.Burst),
		updated: time.Now(),
		now:     time.Now,
	}
}

// Wait blocks until a token is available. It fails fast with a rate limit
// error when the wait would exceed MaxWait or outlive ctx.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := rl.reserve()
		if wait == 0 {
			return nil
		}
		if wait > rl.cfg.MaxWait {
			return shared.ErrPortalRateLimited
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return shared.ErrPortalRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns 0, or returns how long until one is due.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.updated).Seconds() * rl.cfg.RequestsPerSecond
	if max := float64(rl.cfg.Burst); rl.tokens > max {
		rl.tokens = max
	}
	rl.updated = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	missing := 1 - rl.tokens
	return time.Duration(missing / rl.cfg.RequestsPerSecond * float64(time.Second))
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LOCKS - one in-flight portal call per session
// ══════════════════════════════════════════════════════════════════════════════

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key, giving up when ctx ends. The returned
// function releases it. An empty key is never serialised.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}

	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e, false)
		return nil, ctx.Err()
	}

	return func() { k.release(key, e, true) }, nil
}

func (k *keyedMutex) release(key string, e *keyedEntry, held bool) {
	if held {
		<-e.ch
	}
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
