// Copyright 2025 James Ross

// Package engine is the facade from spec §6 "Ingress API": the single
// collaborator surface an external transport (out of scope here)
// would call into — submit, status, provider (de)registration, and
// the metrics/health read models.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/breaker"
	"github.com/flyingrobots/go-redis-work-queue/internal/dispatch"
	"github.com/flyingrobots/go-redis-work-queue/internal/metrics"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
	"github.com/flyingrobots/go-redis-work-queue/internal/query"
	"github.com/flyingrobots/go-redis-work-queue/internal/ratelimit"
	"github.com/flyingrobots/go-redis-work-queue/internal/scheduler"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine wires every component behind the ingress contract.
type Engine struct {
	store     store.Store
	providers *provider.Registry
	limiter   *ratelimit.Manager
	dispatch  *dispatch.Client
	counters  *metrics.Counters
	finder    *query.Finder
	pool      *scheduler.Pool
	log       *zap.Logger
}

// New assembles an Engine from its components. Call Run to start the
// worker pool; Engine itself is usable for submit/status/provider
// management before Run is called.
func New(s store.Store, providers *provider.Registry, limiter *ratelimit.Manager, d *dispatch.Client, counters *metrics.Counters, pool *scheduler.Pool, log *zap.Logger) *Engine {
	return &Engine{
		store:     s,
		providers: providers,
		limiter:   limiter,
		dispatch:  d,
		counters:  counters,
		finder:    query.New(s),
		pool:      pool,
		log:       log,
	}
}

// Run blocks, driving the worker pool until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.pool.Run(ctx)
}

// Submit validates and enqueues an operation per spec §4.5's
// submission algorithm, returning the assigned operation.
func (e *Engine) Submit(ctx context.Context, op operation.Operation) (operation.Operation, error) {
	if _, err := e.providers.Lookup(op.Provider); err != nil {
		return operation.Operation{}, fmt.Errorf("engine: submit: %w", err)
	}
	if err := op.Validate(); err != nil {
		return operation.Operation{}, fmt.Errorf("engine: submit: %w", err)
	}

	payload, err := op.Marshal()
	if err != nil {
		return operation.Operation{}, fmt.Errorf("engine: submit: marshal: %w", err)
	}
	if err := e.store.AddScored(ctx, store.TierPending, payload, float64(op.Priority)); err != nil {
		return operation.Operation{}, fmt.Errorf("engine: submit: enqueue: %w", err)
	}
	if e.counters != nil {
		if err := e.counters.Incr(ctx, metrics.OperationsSubmitted, 1); err != nil {
			e.log.Warn("engine: operations_submitted increment failed", zap.Error(err))
		}
	}
	return op, nil
}

// Status looks up an operation by ID across every tier.
func (e *Engine) Status(ctx context.Context, id uuid.UUID) (operation.Operation, string, error) {
	return e.finder.Status(ctx, id)
}

// RegisterProvider adds or replaces a provider's configuration and
// its rate-limiter budget in one call, since the two are always
// registered together.
func (e *Engine) RegisterProvider(cfg provider.Config) error {
	if err := e.providers.Register(cfg); err != nil {
		return fmt.Errorf("engine: register_provider: %w", err)
	}
	e.limiter.Register(cfg.Name, cfg.RatePerMinute, cfg.BurstSize)
	return nil
}

// DeregisterProvider removes a provider and its rate-limiter budget.
// In-flight operations against it will fail with UnknownProvider on
// their next dispatch attempt.
func (e *Engine) DeregisterProvider(name string) {
	e.providers.Deregister(name)
	e.limiter.Deregister(name)
}

// ProviderStatusView is the provider_status(name) read model: config
// echo, live rate-limit headroom, and circuit breaker state.
type ProviderStatusView struct {
	Config        provider.Config
	BucketStatus  ratelimitStatus
	BreakerState  breaker.State
}

type ratelimitStatus struct {
	Tokens      float64
	Capacity    float64
	RefillRate  float64
	Utilization float64
}

// ProviderStatus implements the provider_status(name) ingress call.
func (e *Engine) ProviderStatus(ctx context.Context, name string) (ProviderStatusView, error) {
	cfg, err := e.providers.Lookup(name)
	if err != nil {
		return ProviderStatusView{}, fmt.Errorf("engine: provider_status: %w", err)
	}
	bucket, _, err := e.limiter.Status(ctx, name)
	if err != nil {
		return ProviderStatusView{}, fmt.Errorf("engine: provider_status: %w", err)
	}
	return ProviderStatusView{
		Config:       cfg,
		BucketStatus: ratelimitStatus{Tokens: bucket.Tokens, Capacity: bucket.Capacity, RefillRate: bucket.RefillRate, Utilization: bucket.Utilization},
		BreakerState: e.dispatch.BreakerState(name),
	}, nil
}

// QueueMetrics implements queue_metrics(): live tier depths plus the
// current hour's error rate.
func (e *Engine) QueueMetrics(ctx context.Context) (metrics.QueueDepth, float64, error) {
	qd, err := e.counters.Queue(ctx)
	if err != nil {
		return qd, 0, err
	}
	rate, err := e.counters.ErrorRate(ctx)
	return qd, rate, err
}

// ProviderMetrics implements provider_metrics(name): success rate and
// average dispatch latency for the current hour.
func (e *Engine) ProviderMetrics(ctx context.Context, name string) (metrics.ProviderStats, error) {
	return e.counters.ProviderMetrics(ctx, name)
}

// HealthStatus is the supplemented read model from SPEC_FULL.md,
// combining backing-store connectivity with the same queue/provider
// metrics an operator would otherwise have to query separately.
type HealthStatus struct {
	StoreReachable bool
	ActiveProviders int
	Queue           metrics.QueueDepth
	ErrorRate       float64
	CheckedAt       time.Time
}

// Health implements the HealthStatus aggregate.
func (e *Engine) Health(ctx context.Context) (HealthStatus, error) {
	hs := HealthStatus{CheckedAt: time.Now().UTC()}
	hs.StoreReachable = e.store.Ping(ctx) == nil
	hs.ActiveProviders = len(e.providers.Names())
	if hs.StoreReachable {
		qd, rate, err := e.QueueMetrics(ctx)
		if err != nil {
			return hs, err
		}
		hs.Queue = qd
		hs.ErrorRate = rate
	}
	return hs, nil
}
