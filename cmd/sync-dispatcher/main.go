// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/dispatch"
	"github.com/flyingrobots/go-redis-work-queue/internal/engine"
	"github.com/flyingrobots/go-redis-work-queue/internal/metrics"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
	"github.com/flyingrobots/go-redis-work-queue/internal/ratelimit"
	"github.com/flyingrobots/go-redis-work-queue/internal/reaper"
	"github.com/flyingrobots/go-redis-work-queue/internal/scheduler"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"github.com/flyingrobots/go-redis-work-queue/internal/transform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var statusID string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "dispatcher", "Role to run: dispatcher|status")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&statusID, "id", "", "Operation ID for --role=status")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	s := store.NewRedisStore(store.Config{
		Addr:               cfg.Redis.Addr,
		Username:           cfg.Redis.Username,
		Password:           cfg.Redis.Password,
		DB:                 cfg.Redis.DB,
		PoolSizeMultiplier: cfg.Redis.PoolSizeMultiplier,
		MinIdleConns:       cfg.Redis.MinIdleConns,
		DialTimeout:        cfg.Redis.DialTimeout,
		ReadTimeout:        cfg.Redis.ReadTimeout,
		WriteTimeout:       cfg.Redis.WriteTimeout,
		MaxRetries:         cfg.Redis.MaxRetries,
	})
	defer s.Close()

	providerConfigs, err := cfg.ProviderConfigs()
	if err != nil {
		logger.Fatal("invalid provider configuration", obs.Err(err))
	}
	providers := provider.NewRegistry()
	limiter := ratelimit.NewManager(s, logger)
	for _, pc := range providerConfigs {
		if err := providers.Register(pc); err != nil {
			logger.Fatal("provider registration failed", obs.String("provider", pc.Name), obs.Err(err))
		}
		limiter.Register(pc.Name, pc.RatePerMinute, pc.BurstSize)
	}

	transformer := transform.NewRegistry()
	breakerCfg := dispatch.BreakerConfig{
		Window:           cfg.CircuitBreaker.Window,
		Cooldown:         cfg.CircuitBreaker.CooldownPeriod,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		MinSamples:       cfg.CircuitBreaker.MinSamples,
	}
	d := dispatch.New(providers, limiter, transformer, logger, breakerCfg)
	counters := metrics.New(s)
	pool := scheduler.New(scheduler.Config{
		WorkerCount:  cfg.Worker.Count,
		MaxRetries:   cfg.Worker.MaxRetries,
		PopTimeout:   cfg.Worker.PopTimeout,
		HeartbeatTTL: cfg.Worker.HeartbeatTTL,
	}, s, d, counters, logger)

	eng := engine.New(s, providers, limiter, d, counters, pool, logger)

	if role == "status" {
		runStatus(eng, statusID, logger)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	readyCheck := func(c context.Context) error {
		hs, err := eng.Health(c)
		if err != nil {
			return err
		}
		if !hs.StoreReachable {
			return fmt.Errorf("backing store unreachable")
		}
		return nil
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	obs.StartQueueLengthUpdater(ctx, cfg, s, logger)

	rep := reaper.New(s, cfg.Worker.HeartbeatTTL/2, logger)
	go rep.Run(ctx)

	logger.Info("sync dispatcher starting", obs.String("role", role))
	eng.Run(ctx)
}

func runStatus(eng *engine.Engine, id string, logger *zap.Logger) {
	if id == "" {
		logger.Fatal("status role requires --id")
	}
	opID, err := uuid.Parse(id)
	if err != nil {
		logger.Fatal("invalid operation id", obs.Err(err))
	}
	op, tier, err := eng.Status(context.Background(), opID)
	if err != nil {
		logger.Fatal("status lookup failed", obs.Err(err))
	}
	out, _ := json.MarshalIndent(struct {
		Tier      string `json:"tier"`
		Operation any    `json:"operation"`
	}{Tier: tier, Operation: op}, "", "  ")
	fmt.Println(string(out))
}
