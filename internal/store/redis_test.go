// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client)
}

func TestAddScoredAndRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddScored(ctx, "pending", "b", 5))
	require.NoError(t, s.AddScored(ctx, "pending", "a", 1))
	require.NoError(t, s.AddScored(ctx, "pending", "c", 9))

	members, err := s.RangeScored(ctx, "pending", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, members)

	card, err := s.Card(ctx, "pending")
	require.NoError(t, err)
	require.EqualValues(t, 3, card)
}

func TestPopMinWaitReturnsLowestScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddScored(ctx, "pending", "low", 1))
	require.NoError(t, s.AddScored(ctx, "pending", "high", 9))

	member, score, ok, err := s.PopMinWait(ctx, "pending", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "low", member)
	require.EqualValues(t, 1, score)
}

func TestPopMinWaitTimesOutOnEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, ok, err := s.PopMinWait(ctx, "pending", 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMoveMinWaitMovesAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddScored(ctx, "pending", "op-1", 3))

	member, score, ok, err := s.MoveMinWait(ctx, "pending", "in_flight", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "op-1", member)
	require.EqualValues(t, 3, score)

	card, err := s.Card(ctx, "pending")
	require.NoError(t, err)
	require.EqualValues(t, 0, card)

	members, err := s.RangeScored(ctx, "in_flight", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"op-1"}, members)
}

func TestMoveMinWaitTimesOutOnEmptySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, ok, err := s.MoveMinWait(ctx, "pending", "in_flight", 150*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListPushLenRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ListPush(ctx, "completed", "op-1"))
	require.NoError(t, s.ListPush(ctx, "completed", "op-2"))

	n, err := s.ListLen(ctx, "completed")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	items, err := s.ListRange(ctx, "completed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"op-2", "op-1"}, items)
}

func TestHashSetGetAllWithTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.HashSet(ctx, "rate_limit:sf", map[string]string{
		"tokens":      "10",
		"last_refill": "100",
	}, time.Hour))

	got, err := s.HashGetAll(ctx, "rate_limit:sf")
	require.NoError(t, err)
	require.Equal(t, "10", got["tokens"])
	require.Equal(t, "100", got["last_refill"])
}

func TestCounterIncrBySetsTTLOnceOnCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.CounterIncrBy(ctx, "metrics:2026-08-01-00:submitted", 1, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = s.CounterIncrBy(ctx, "metrics:2026-08-01-00:submitted", 4, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 5, v)
}

func TestCounterGetReadsWithoutCreatingKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.CounterGet(ctx, "metrics:2026-08-01-00:untouched")
	require.NoError(t, err)
	require.EqualValues(t, 0, v)

	_, err = s.CounterIncrBy(ctx, "metrics:2026-08-01-00:submitted", 3, 24*time.Hour)
	require.NoError(t, err)

	v, err = s.CounterGet(ctx, "metrics:2026-08-01-00:submitted")
	require.NoError(t, err)
	require.EqualValues(t, 3, v)
}

func TestEvalCachesScriptBySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Eval(ctx, `return ARGV[1]`, nil, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", res)

	// second call with the same source should hit the cached script
	res, err = s.Eval(ctx, `return ARGV[1]`, nil, "again")
	require.NoError(t, err)
	require.Equal(t, "again", res)
}
