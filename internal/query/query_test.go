// Copyright 2025 James Ross
package query

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestFinder(t *testing.T) (*Finder, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(rdb)
	return New(s), s
}

func TestStatusFindsOperationInPending(t *testing.T) {
	f, s := newTestFinder(t)
	op := operation.New(operation.Read, "sf", 5, "rec-1", nil)
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.AddScored(context.Background(), store.TierPending, payload, 5))

	found, tier, err := f.Status(context.Background(), op.ID)
	require.NoError(t, err)
	require.Equal(t, store.TierPending, tier)
	require.Equal(t, op.ID, found.ID)
}

func TestStatusFindsOperationInDeadLetter(t *testing.T) {
	f, s := newTestFinder(t)
	op := operation.New(operation.Delete, "sf", 1, "rec-2", nil)
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.ListPush(context.Background(), store.TierDeadLetter, payload))

	_, tier, err := f.Status(context.Background(), op.ID)
	require.NoError(t, err)
	require.Equal(t, store.TierDeadLetter, tier)
}

func TestStatusReturnsNotFoundForUnknownID(t *testing.T) {
	f, _ := newTestFinder(t)
	op := operation.New(operation.Read, "sf", 1, "rec-3", nil)
	_, _, err := f.Status(context.Background(), op.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFieldExtractsFromResponseData(t *testing.T) {
	f, s := newTestFinder(t)
	op := operation.New(operation.Create, "sf", 5, "", map[string]any{"first_name": "A"})
	op.ResponseData = map[string]any{"id": "sf-123", "success": true}
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.ListPush(context.Background(), store.TierCompleted, payload))

	v, err := f.Field(context.Background(), op.ID, "$.id")
	require.NoError(t, err)
	require.Equal(t, "sf-123", v)
}

func TestFieldFallsBackToRecordWhenNoResponseData(t *testing.T) {
	f, s := newTestFinder(t)
	op := operation.New(operation.Create, "sf", 5, "", map[string]any{"first_name": "A"})
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.AddScored(context.Background(), store.TierPending, payload, 5))

	v, err := f.Field(context.Background(), op.ID, "$.first_name")
	require.NoError(t, err)
	require.Equal(t, "A", v)
}

func TestStatusPrefersPendingOverDeadLetterWhenIDCollides(t *testing.T) {
	f, s := newTestFinder(t)
	op := operation.New(operation.Read, "sf", 1, "rec-4", nil)
	payload, err := op.Marshal()
	require.NoError(t, err)
	require.NoError(t, s.AddScored(context.Background(), store.TierPending, payload, 1))
	require.NoError(t, s.ListPush(context.Background(), store.TierDeadLetter, payload))

	_, tier, err := f.Status(context.Background(), op.ID)
	require.NoError(t, err)
	require.Equal(t, store.TierPending, tier)
}
