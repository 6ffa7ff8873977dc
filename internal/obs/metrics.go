// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_operations_total",
		Help: "Total number of sync operations by type, provider, and outcome",
	}, []string{"operation_type", "provider", "status"})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_dispatch_duration_seconds",
		Help:    "Histogram of outbound dispatch durations",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	SyncQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Current number of operations held in a tier",
	}, []string{"tier"})

	RateLimitUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_rate_limit_utilization",
		Help: "Fraction of a provider's token bucket currently consumed",
	}, []string{"provider"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"provider"})

	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Count of times a provider's circuit breaker transitioned to Open",
	}, []string{"provider"})

	ReaperRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_recovered_total",
		Help: "Total number of operations recovered by the reaper from in_flight",
	})

	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active",
		Help: "Number of active worker goroutines",
	})
)

func init() {
	prometheus.MustRegister(SyncOperationsTotal, DispatchDuration, SyncQueueDepth, RateLimitUtilization, CircuitBreakerState, CircuitBreakerTrips, ReaperRecovered, WorkerActive)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
// StartMetricsServer is retained for compatibility but consider using StartHTTPServer
// which also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
