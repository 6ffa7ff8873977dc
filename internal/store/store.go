// Copyright 2025 James Ross
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is the sentinel for operations attempted after Close.
// RedisStore does not return it; after Close its methods return the
// go-redis client's own closed-client error.
var ErrClosed = errors.New("store: closed")

// Store is the Backing Store Adapter contract from spec §6: an
// ordered set, an append-only list, a hash-map with TTL, an integer
// counter with TTL, and server-side atomic scripting over them.
// internal/scheduler, internal/bucket, internal/metrics and
// internal/query depend on this interface, not on a concrete client,
// so a non-Redis backing store could be substituted without touching
// them.
type Store interface {
	// AddScored inserts member into the ordered set named tier with
	// the given score, upserting if member is already present.
	AddScored(ctx context.Context, tier, member string, score float64) error

	// PopMinWait blocks up to timeout for the lowest-scored member of
	// tier and removes it. ok is false on timeout.
	PopMinWait(ctx context.Context, tier string, timeout time.Duration) (member string, score float64, ok bool, err error)

	// MoveMinWait atomically pops the lowest-scored member of from and
	// inserts it into to with its original score, polling up to
	// timeout. This closes the non-atomic pop-then-push window called
	// out in spec §5/§9.
	MoveMinWait(ctx context.Context, from, to string, timeout time.Duration) (member string, score float64, ok bool, err error)

	// RemoveScored removes member from the ordered set named tier.
	RemoveScored(ctx context.Context, tier, member string) error

	// Card returns the cardinality of the ordered set named tier.
	Card(ctx context.Context, tier string) (int64, error)

	// RangeScored returns members of tier ordered by score ascending,
	// using the same start/stop semantics as a Redis ZRANGE.
	RangeScored(ctx context.Context, tier string, start, stop int64) ([]string, error)

	// ListPush prepends value onto the append-only list.
	ListPush(ctx context.Context, list, value string) error

	// ListLen returns the length of the append-only list.
	ListLen(ctx context.Context, list string) (int64, error)

	// ListRange returns a slice of the append-only list, using the
	// same start/stop semantics as a Redis LRANGE.
	ListRange(ctx context.Context, list string, start, stop int64) ([]string, error)

	// HashGetAll reads every field of a hash-map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes fields into a hash-map and (re)sets its TTL when
	// ttl > 0.
	HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// CounterIncrBy atomically increments an integer counter, setting
	// its TTL only the first time the key is created, and returns the
	// post-increment value.
	CounterIncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)

	// CounterGet reads an integer counter's current value without
	// creating or extending it; a never-touched counter reads as 0.
	CounterGet(ctx context.Context, key string) (int64, error)

	// Eval runs a Lua script atomically against the store, caching the
	// script by source so repeat calls avoid re-uploading it.
	Eval(ctx context.Context, src string, keys []string, args ...any) (any, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's underlying connections.
	Close() error
}
