// Copyright 2025 James Ross
package reaper

import (
	"context"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"go.uber.org/zap"
)

// maxScanPerSweep bounds how many in_flight members a single sweep
// inspects, matching internal/query's bounded-scan discipline.
const maxScanPerSweep = 10000

// Reaper recovers operations stranded in the in_flight tier by a
// worker that died before completing its dispatch: its heartbeat key
// expires, and the next sweep moves the operation back to pending.
// Generalized from the teacher's per-worker processing-list sweep,
// which scanned "jobqueue:worker:*:processing" keys instead of a
// single shared in_flight tier.
type Reaper struct {
	store    store.Store
	interval time.Duration
	log      *zap.Logger
}

func New(s store.Store, interval time.Duration, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reaper{store: s, interval: interval, log: log}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	members, err := r.store.RangeScored(ctx, store.TierInFlight, 0, maxScanPerSweep-1)
	if err != nil {
		r.log.Warn("reaper: scan in_flight failed", obs.Err(err))
		return
	}

	for _, payload := range members {
		op, err := operation.Unmarshal(payload)
		if err != nil {
			continue // tolerate poison entries; they are left in in_flight
		}

		hbKey := store.HeartbeatKey(op.ID.String())
		fields, err := r.store.HashGetAll(ctx, hbKey)
		if err != nil {
			r.log.Warn("reaper: heartbeat lookup failed", obs.String("id", op.ID.String()), obs.Err(err))
			continue
		}
		if len(fields) > 0 {
			continue // worker still alive
		}

		if err := r.store.RemoveScored(ctx, store.TierInFlight, payload); err != nil {
			r.log.Warn("reaper: remove from in_flight failed", obs.String("id", op.ID.String()), obs.Err(err))
			continue
		}
		if err := r.store.AddScored(ctx, store.TierPending, payload, float64(op.Priority)); err != nil {
			r.log.Error("reaper: requeue to pending failed", obs.String("id", op.ID.String()), obs.Err(err))
			continue
		}
		obs.ReaperRecovered.Inc()
		r.log.Warn("requeued abandoned operation",
			obs.String("id", op.ID.String()), obs.String("provider", op.Provider))
	}
}
