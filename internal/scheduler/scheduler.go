// Copyright 2025 James Ross

// Package scheduler is the Scheduler/Worker Pool from spec §4.5: N
// concurrent workers draining the pending tier, moving operations
// through the in-flight tier via an atomic handoff, and routing
// terminal outcomes to the completed/dead-letter tiers with
// backoff-driven re-enqueue (the failed tier is never written here). Generalized from the teacher's
// internal/worker package, which drove a single BRPOPLPUSH-based
// processing list instead of a priority-ordered handoff.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/dispatch"
	"github.com/flyingrobots/go-redis-work-queue/internal/metrics"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"go.uber.org/zap"
)

// maxScheduledAtSleep bounds the spin spec §9 calls out for a
// not-yet-due item re-enqueued to an otherwise-empty pending tier —
// the adopted Open Question resolution.
const maxScheduledAtSleep = 250 * time.Millisecond

const defaultMaxRetries = 3

// Config parameterizes the worker pool.
type Config struct {
	WorkerCount  int
	MaxRetries   int
	PopTimeout   time.Duration // how long MoveMinWait blocks per attempt
	HeartbeatTTL time.Duration
}

// DefaultConfig matches spec.md's stated defaults (5s blocking-pop
// timeout, 3 max retries).
func DefaultConfig() Config {
	return Config{WorkerCount: 4, MaxRetries: defaultMaxRetries, PopTimeout: 5 * time.Second, HeartbeatTTL: 30 * time.Second}
}

// Pool is the worker pool draining the pending tier.
type Pool struct {
	cfg        Config
	store      store.Store
	dispatcher *dispatch.Client
	counters   *metrics.Counters
	log        *zap.Logger
	baseID     string
}

// New builds a Pool. counters may be nil to disable hour-bucketed
// counting (e.g. in tests focused on routing behavior only).
func New(cfg Config, s store.Store, d *dispatch.Client, counters *metrics.Counters, log *zap.Logger) *Pool {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	host, _ := os.Hostname()
	return &Pool{cfg: cfg, store: s, dispatcher: d, counters: counters, log: log, baseID: fmt.Sprintf("%s-%d", host, os.Getpid())}
}

// Run blocks, running cfg.WorkerCount goroutines until ctx is
// canceled. In-flight dispatches are allowed to complete; Run returns
// once every worker goroutine has exited.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("%s-%d", p.baseID, i)
		go func() {
			defer wg.Done()
			obs.WorkerActive.Inc()
			defer obs.WorkerActive.Dec()
			p.runOne(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (p *Pool) incr(ctx context.Context, name string) {
	if p.counters == nil {
		return
	}
	if err := p.counters.Incr(ctx, name, 1); err != nil {
		p.log.Warn("scheduler: counter increment failed", zap.String("counter", name), zap.Error(err))
	}
}

func (p *Pool) runOne(ctx context.Context, workerID string) {
	for ctx.Err() == nil {
		payload, _, ok, err := p.store.MoveMinWait(ctx, store.TierPending, store.TierInFlight, p.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("scheduler: handoff failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !ok {
			continue // nothing due within PopTimeout
		}

		op, err := operation.Unmarshal(payload)
		if err != nil {
			p.log.Error("scheduler: dropping unparseable in-flight payload", zap.Error(err))
			_ = p.store.RemoveScored(ctx, store.TierInFlight, payload)
			continue
		}

		if !op.Due(time.Now().UTC()) {
			p.reenqueueNotYetDue(ctx, op, payload)
			continue
		}

		p.process(ctx, workerID, op, payload)
	}
}

// reenqueueNotYetDue implements spec §4.5 step 4: a future-scheduled
// item is moved straight back to pending at its original priority. To
// avoid a tight spin when it's the only item in the tier, the worker
// sleeps for at most maxScheduledAtSleep first.
func (p *Pool) reenqueueNotYetDue(ctx context.Context, op operation.Operation, payload string) {
	wait := time.Until(*op.ScheduledAt)
	if wait > maxScheduledAtSleep {
		wait = maxScheduledAtSleep
	}
	if wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	_ = p.store.RemoveScored(ctx, store.TierInFlight, payload)
	_ = p.store.AddScored(ctx, store.TierPending, payload, float64(op.Priority))
}

func (p *Pool) process(ctx context.Context, workerID string, op operation.Operation, payload string) {
	hbKey := store.HeartbeatKey(op.ID.String())
	_ = p.store.HashSet(ctx, hbKey, map[string]string{"worker_id": workerID}, p.cfg.HeartbeatTTL)

	startedAt := time.Now().UTC()
	op.StartedAt = &startedAt

	start := time.Now()
	result, externalID, dispatchErr := p.dispatcher.Dispatch(ctx, op)
	duration := time.Since(start)
	obs.DispatchDuration.WithLabelValues(op.Provider).Observe(duration.Seconds())
	obs.RecordError(ctx, dispatchErr)
	if p.counters != nil {
		if err := p.counters.RecordProviderOutcome(ctx, op.Provider, dispatchErr == nil, duration); err != nil {
			p.log.Warn("scheduler: provider outcome recording failed", zap.Error(err))
		}
	}

	if dispatchErr == nil {
		p.complete(ctx, op, payload, result, externalID)
		p.log.Info("operation completed",
			zap.String("id", op.ID.String()), zap.String("provider", op.Provider),
			zap.String("worker_id", workerID), zap.Duration("duration", duration))
		return
	}

	p.fail(ctx, op, payload, dispatchErr, workerID)
}

func (p *Pool) complete(ctx context.Context, op operation.Operation, payload string, result map[string]any, externalID string) {
	now := time.Now().UTC()
	op.CompletedAt = &now
	op.ResponseData = result
	if op.Kind == operation.Create && externalID != "" {
		op.ExternalID = externalID
	}
	out, err := op.Marshal()
	if err != nil {
		p.log.Error("scheduler: marshal completed operation failed", zap.Error(err))
		out = payload
	}
	if err := p.store.ListPush(ctx, store.TierCompleted, out); err != nil {
		p.log.Error("scheduler: push to completed failed", zap.Error(err))
	}
	_ = p.store.RemoveScored(ctx, store.TierInFlight, payload)
	p.incr(ctx, metrics.OperationsCompleted)
	obs.SyncOperationsTotal.WithLabelValues(string(op.Kind), op.Provider, "success").Inc()
}

// fail implements spec §4 step 7: remove from in_flight; retry with
// delayed re-enqueue up to MaxRetries, otherwise dead-letter.
func (p *Pool) fail(ctx context.Context, op operation.Operation, payload string, cause error, workerID string) {
	_ = p.store.RemoveScored(ctx, store.TierInFlight, payload)
	op.ErrorMessage = cause.Error()

	if op.RetryCount < p.cfg.MaxRetries {
		op.RetryCount++
		delay := retryDelay(op.RetryCount)
		due := time.Now().UTC().Add(delay)
		op.ScheduledAt = &due
		out, err := op.Marshal()
		if err != nil {
			p.log.Error("scheduler: marshal retried operation failed", zap.Error(err))
			return
		}
		if err := p.store.AddScored(ctx, store.TierPending, out, float64(op.Priority)); err != nil {
			p.log.Error("scheduler: re-enqueue to pending failed", zap.Error(err))
		}
		obs.SyncOperationsTotal.WithLabelValues(string(op.Kind), op.Provider, "retry").Inc()
		p.log.Warn("operation retry scheduled",
			zap.String("id", op.ID.String()), zap.String("provider", op.Provider),
			zap.Int("retry_count", op.RetryCount), zap.Duration("delay", delay),
			zap.String("worker_id", workerID), zap.Error(cause))
		return
	}

	out, err := op.Marshal()
	if err != nil {
		out = payload
	}
	if err := p.store.ListPush(ctx, store.TierDeadLetter, out); err != nil {
		p.log.Error("scheduler: push to dead_letter failed", zap.Error(err))
	}
	p.incr(ctx, metrics.OperationsFailed)
	obs.SyncOperationsTotal.WithLabelValues(string(op.Kind), op.Provider, "dead_letter").Inc()
	p.log.Error("operation dead-lettered",
		zap.String("id", op.ID.String()), zap.String("provider", op.Provider),
		zap.Int("retry_count", op.RetryCount), zap.String("worker_id", workerID), zap.Error(cause))
}

// retryDelay is min(300, 2^(retry_count-1)) seconds, per spec §4 step 7.
func retryDelay(retryCount int) time.Duration {
	secs := int64(1) << uint(retryCount-1)
	if secs > 300 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}
