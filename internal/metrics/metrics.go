// Copyright 2025 James Ross

// Package metrics is the Metrics Counters component from spec §4.6:
// hour-bucketed counters with a 24-hour TTL set once on first touch,
// plus live queue-depth and error-rate computation over the backing
// store's tiers.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/store"
)

const counterTTL = 24 * time.Hour

// Counter names incremented over the course of an operation's life,
// per spec §4 steps 4/6/7.
const (
	OperationsSubmitted = "operations_submitted"
	OperationsCompleted = "operations_completed"
	OperationsFailed    = "operations_failed"
)

// Counters increments and reports the hour-bucketed counters.
type Counters struct {
	store store.Store
	now   func() time.Time
}

// New builds a Counters backed by s. now defaults to time.Now and is
// overridable in tests so hour-bucket rollover is deterministic.
func New(s store.Store) *Counters {
	return &Counters{store: s, now: time.Now}
}

func (c *Counters) hourBucket() string {
	return c.now().UTC().Format("2006-01-02-15")
}

// Incr adds n to name's counter in the current hour bucket.
func (c *Counters) Incr(ctx context.Context, name string, n int64) error {
	key := store.MetricsCounterKey(c.hourBucket(), name)
	_, err := c.store.CounterIncrBy(ctx, key, n, counterTTL)
	return err
}

// Get returns name's counter value for the current hour bucket, 0 if
// untouched this hour. This is a plain read and never creates the key.
func (c *Counters) Get(ctx context.Context, name string) (int64, error) {
	key := store.MetricsCounterKey(c.hourBucket(), name)
	return c.store.CounterGet(ctx, key)
}

// QueueDepth reports the live cardinality/length of each tier.
type QueueDepth struct {
	Pending    int64
	InFlight   int64
	Completed  int64
	Failed     int64
	DeadLetter int64
}

// Queue computes live queue depth across all five tiers.
func (c *Counters) Queue(ctx context.Context) (QueueDepth, error) {
	var qd QueueDepth
	var err error
	if qd.Pending, err = c.store.Card(ctx, store.TierPending); err != nil {
		return qd, fmt.Errorf("metrics: pending cardinality: %w", err)
	}
	if qd.InFlight, err = c.store.Card(ctx, store.TierInFlight); err != nil {
		return qd, fmt.Errorf("metrics: in_flight cardinality: %w", err)
	}
	if qd.Completed, err = c.store.ListLen(ctx, store.TierCompleted); err != nil {
		return qd, fmt.Errorf("metrics: completed length: %w", err)
	}
	if qd.Failed, err = c.store.ListLen(ctx, store.TierFailed); err != nil {
		return qd, fmt.Errorf("metrics: failed length: %w", err)
	}
	if qd.DeadLetter, err = c.store.ListLen(ctx, store.TierDeadLetter); err != nil {
		return qd, fmt.Errorf("metrics: dead_letter length: %w", err)
	}
	return qd, nil
}

// ErrorRate is failed_hour / (completed_hour + failed_hour) for the
// current hour bucket, 0 when the denominator is 0.
func (c *Counters) ErrorRate(ctx context.Context) (float64, error) {
	completed, err := c.Get(ctx, OperationsCompleted)
	if err != nil {
		return 0, err
	}
	failed, err := c.Get(ctx, OperationsFailed)
	if err != nil {
		return 0, err
	}
	total := completed + failed
	if total == 0 {
		return 0, nil
	}
	return float64(failed) / float64(total), nil
}

// ProviderStats is the per-provider read model behind
// internal/engine's provider_metrics() surface, restoring the Python
// original's ProviderMetrics.average_response_time_ms /
// success_rate_percentage (see SPEC_FULL.md Supplemented Features).
type ProviderStats struct {
	Provider               string
	SuccessCount           int64
	FailureCount           int64
	SuccessRatePercentage  float64
	AverageResponseTimeMs  float64
}

// RecordProviderOutcome accumulates the per-provider success/failure
// counts and latency sum used by ProviderStats. Called once per
// dispatch attempt, independent of the global operations_* counters.
func (c *Counters) RecordProviderOutcome(ctx context.Context, provider string, success bool, duration time.Duration) error {
	name := "dispatch_success:" + provider
	if !success {
		name = "dispatch_failure:" + provider
	}
	if err := c.Incr(ctx, name, 1); err != nil {
		return err
	}
	latencyKey := store.MetricsCounterKey(c.hourBucket(), "dispatch_latency_ms_sum:"+provider)
	if _, err := c.store.CounterIncrBy(ctx, latencyKey, duration.Milliseconds(), counterTTL); err != nil {
		return err
	}
	countKey := store.MetricsCounterKey(c.hourBucket(), "dispatch_latency_count:"+provider)
	_, err := c.store.CounterIncrBy(ctx, countKey, 1, counterTTL)
	return err
}

// ProviderMetrics computes the current-hour success rate and average
// dispatch latency for provider.
func (c *Counters) ProviderMetrics(ctx context.Context, provider string) (ProviderStats, error) {
	stats := ProviderStats{Provider: provider}
	var err error
	if stats.SuccessCount, err = c.Get(ctx, "dispatch_success:"+provider); err != nil {
		return stats, err
	}
	if stats.FailureCount, err = c.Get(ctx, "dispatch_failure:"+provider); err != nil {
		return stats, err
	}
	total := stats.SuccessCount + stats.FailureCount
	if total > 0 {
		stats.SuccessRatePercentage = 100 * float64(stats.SuccessCount) / float64(total)
	}

	latencySum, err := c.Get(ctx, "dispatch_latency_ms_sum:"+provider)
	if err != nil {
		return stats, err
	}
	latencyCount, err := c.Get(ctx, "dispatch_latency_count:"+provider)
	if err != nil {
		return stats, err
	}
	if latencyCount > 0 {
		stats.AverageResponseTimeMs = float64(latencySum) / float64(latencyCount)
	}
	return stats, nil
}
