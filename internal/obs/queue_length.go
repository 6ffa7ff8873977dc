// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"go.uber.org/zap"
)

// scoredTiers hold the priority queues (ZSET-backed); listTiers hold
// the append-only terminal tiers (LIST-backed). This package restates
// the names rather than importing store's constants, to keep the
// sampler decoupled from store's internal layout.
var (
	scoredTiers = [...]string{"pending", "in_flight"}
	listTiers   = [...]string{"completed", "failed", "dead_letter"}
)

// StartQueueLengthUpdater samples tier depths and updates SyncQueueDepth.
func StartQueueLengthUpdater(ctx context.Context, cfg *config.Config, s store.Store, log *zap.Logger) {
	interval := 2 * time.Second
	if cfg.Observability.QueueSampleInterval > 0 {
		interval = cfg.Observability.QueueSampleInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, tier := range scoredTiers {
					n, err := s.Card(ctx, tier)
					if err != nil {
						log.Debug("queue length poll error", String("tier", tier), Err(err))
						continue
					}
					SyncQueueDepth.WithLabelValues(tier).Set(float64(n))
				}
				for _, tier := range listTiers {
					n, err := s.ListLen(ctx, tier)
					if err != nil {
						log.Debug("queue length poll error", String("tier", tier), Err(err))
						continue
					}
					SyncQueueDepth.WithLabelValues(tier).Set(float64(n))
				}
			}
		}
	}()
}
