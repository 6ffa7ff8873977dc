// Copyright 2025 James Ross
package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReaper(t *testing.T) (*Reaper, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(rdb)
	return New(s, time.Second, zap.NewNop()), s
}

func TestSweepRequeuesOperationWithExpiredHeartbeat(t *testing.T) {
	r, s := newTestReaper(t)
	op := operation.New(operation.Read, "sf", 5, "rec-1", nil)
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.AddScored(context.Background(), store.TierInFlight, payload, 5))
	// no heartbeat key written — simulates a dead worker

	r.sweepOnce(context.Background())

	n, err := s.Card(context.Background(), store.TierPending)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	inFlight, err := s.Card(context.Background(), store.TierInFlight)
	require.NoError(t, err)
	require.Equal(t, int64(0), inFlight)
}

func TestSweepLeavesOperationWithLiveHeartbeat(t *testing.T) {
	r, s := newTestReaper(t)
	op := operation.New(operation.Read, "sf", 5, "rec-1", nil)
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.AddScored(context.Background(), store.TierInFlight, payload, 5))
	require.NoError(t, s.HashSet(context.Background(), store.HeartbeatKey(op.ID.String()), map[string]string{"worker_id": "w1"}, time.Minute))

	r.sweepOnce(context.Background())

	inFlight, err := s.Card(context.Background(), store.TierInFlight)
	require.NoError(t, err)
	require.Equal(t, int64(1), inFlight)
}
