// Copyright 2025 James Ross

// Package ratelimit implements the Rate Limiter Manager from spec
// §4.2: one Token Bucket per registered provider, guarded the way
// internal/breaker.CircuitBreaker guards its own per-scope state,
// grounded on the Python original's RateLimiterManager for the
// fail-open and await-capacity semantics.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flyingrobots/go-redis-work-queue/internal/bucket"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"go.uber.org/zap"
)

var errNotYet = errors.New("ratelimit: capacity not yet available")

// Manager owns one TokenBucket per registered provider.
type Manager struct {
	mu          sync.RWMutex
	store       store.Store
	log         *zap.Logger
	buckets     map[string]*bucket.TokenBucket
	refillRates map[string]float64
}

// NewManager builds an empty Manager; providers must be Register'd
// before TryAcquire treats them as rate-limited.
func NewManager(s store.Store, log *zap.Logger) *Manager {
	return &Manager{
		store:       s,
		log:         log,
		buckets:     make(map[string]*bucket.TokenBucket),
		refillRates: make(map[string]float64),
	}
}

// Register is an idempotent upsert of a provider's bucket config.
func (m *Manager) Register(provider string, ratePerMinute, burst float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[provider] = bucket.New(m.store, provider, ratePerMinute, burst)
	m.refillRates[provider] = ratePerMinute / 60.0
}

// Deregister removes the local bucket; backing-store state lingers
// until its TTL, per spec.
func (m *Manager) Deregister(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, provider)
	delete(m.refillRates, provider)
}

// TryAcquire attempts to consume n tokens for provider. An unknown
// provider fails open (returns true) and logs a warning, per spec.
func (m *Manager) TryAcquire(ctx context.Context, provider string, n float64) (bool, error) {
	m.mu.RLock()
	b, ok := m.buckets[provider]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn("rate limiter: unknown provider, failing open", zap.String("provider", provider))
		return true, nil
	}
	return b.Acquire(ctx, n)
}

// Status returns the current bucket status for provider, or false if
// the provider is not registered.
func (m *Manager) Status(ctx context.Context, provider string) (bucket.Status, bool, error) {
	m.mu.RLock()
	b, ok := m.buckets[provider]
	m.mu.RUnlock()
	if !ok {
		return bucket.Status{}, false, nil
	}
	s, err := b.Status(ctx)
	return s, true, err
}

// capacityBackOff recomputes the poll interval from the current
// refill rate on every attempt, satisfying backoff.BackOff so
// AwaitCapacity can drive it through backoff.Retry instead of a
// hand-rolled sleep loop.
type capacityBackOff struct {
	refillRate float64
	n          float64
}

func (c *capacityBackOff) NextBackOff() time.Duration {
	wait := 1.0
	if c.refillRate > 0 {
		wait = c.n / c.refillRate
	}
	if wait > 1.0 {
		wait = 1.0
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait * float64(time.Second))
}

func (c *capacityBackOff) Reset() {}

// AwaitCapacity loops TryAcquire, sleeping min(n/refill_rate, 1s)
// between attempts, until success or timeout. An unknown provider
// fails open immediately, matching TryAcquire.
func (m *Manager) AwaitCapacity(ctx context.Context, provider string, n float64, timeout time.Duration) (bool, error) {
	m.mu.RLock()
	rate, known := m.refillRates[provider]
	m.mu.RUnlock()
	if !known {
		m.log.Warn("rate limiter: unknown provider, failing open", zap.String("provider", provider))
		return true, nil
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.WithContext(&capacityBackOff{refillRate: rate, n: n}, deadlineCtx)
	var acquired bool
	op := func() error {
		ok, err := m.TryAcquire(deadlineCtx, provider, n)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		acquired = true
		return nil
	}

	err := backoff.Retry(op, bo)
	if err == nil {
		return acquired, nil
	}
	if errors.Is(err, errNotYet) || errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, err
}
