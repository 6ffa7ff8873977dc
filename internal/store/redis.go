// Copyright 2025 James Ross
package store

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config mirrors the redis section of internal/config.Config; kept
// standalone here so this package does not depend on internal/config.
type Config struct {
	Addr               string
	Username           string
	Password           string
	DB                 int
	PoolSizeMultiplier int
	MinIdleConns       int
	DialTimeout        time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxRetries         int
}

// RedisStore implements Store against a single Redis instance.
type RedisStore struct {
	rdb     *redis.Client
	scripts sync.Map // src string -> *redis.Script
}

// NewRedisStore builds a pooled go-redis/v9 client, sized the same
// way internal/redisclient.New sizes its pool (a PoolSizeMultiplier
// per CPU, not a fixed constant), and wraps it as a Store.
func NewRedisStore(cfg Config) *RedisStore {
	poolSize := cfg.PoolSizeMultiplier * runtime.NumCPU()
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
	return NewRedisStoreFromClient(rdb)
}

// NewRedisStoreFromClient wraps an already-constructed client,
// primarily so tests can point a RedisStore at a miniredis instance.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) AddScored(ctx context.Context, tier, member string, score float64) error {
	return s.rdb.ZAdd(ctx, tier, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) RemoveScored(ctx context.Context, tier, member string) error {
	return s.rdb.ZRem(ctx, tier, member).Err()
}

func (s *RedisStore) Card(ctx context.Context, tier string) (int64, error) {
	return s.rdb.ZCard(ctx, tier).Result()
}

func (s *RedisStore) RangeScored(ctx context.Context, tier string, start, stop int64) ([]string, error) {
	return s.rdb.ZRange(ctx, tier, start, stop).Result()
}

func (s *RedisStore) PopMinWait(ctx context.Context, tier string, timeout time.Duration) (string, float64, bool, error) {
	res, err := s.rdb.BZPopMin(ctx, timeout, tier).Result()
	if err == redis.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	member, ok := res.Member.(string)
	if !ok {
		return "", 0, false, fmt.Errorf("store: non-string member popped from %s", tier)
	}
	return member, res.Score, true, nil
}

// moveMinScript atomically pops the lowest-scored member of KEYS[1]
// and, if present, inserts it into KEYS[2] with the same score. It
// returns an empty table when the source set is empty so the caller
// can distinguish "nothing to move" from an error.
const moveMinScript = `
local popped = redis.call('ZPOPMIN', KEYS[1], 1)
if #popped == 0 then
	return {}
end
local member = popped[1]
local score = popped[2]
redis.call('ZADD', KEYS[2], score, member)
return {member, score}
`

// MoveMinWait polls moveMinScript every pollInterval until it moves an
// entry or timeout elapses. Redis scripts cannot themselves block, so
// this is how the atomic move is combined with the 5-second
// blocking-pop timeout semantics spec'd for the worker loop.
func (s *RedisStore) MoveMinWait(ctx context.Context, from, to string, timeout time.Duration) (string, float64, bool, error) {
	const pollInterval = 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		res, err := s.Eval(ctx, moveMinScript, []string{from, to})
		if err != nil {
			return "", 0, false, err
		}
		if vals, ok := res.([]any); ok && len(vals) == 2 {
			member, _ := vals[0].(string)
			score := toFloat(vals[1])
			return member, score, true, nil
		}
		if time.Now().After(deadline) {
			return "", 0, false, nil
		}
		select {
		case <-ctx.Done():
			return "", 0, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *RedisStore) ListPush(ctx context.Context, list, value string) error {
	return s.rdb.LPush(ctx, list, value).Err()
}

func (s *RedisStore) ListLen(ctx context.Context, list string) (int64, error) {
	return s.rdb.LLen(ctx, list).Result()
}

func (s *RedisStore) ListRange(ctx context.Context, list string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, list, start, stop).Result()
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// counterIncrScript increments KEYS[1] by ARGV[1] and sets a TTL of
// ARGV[2] seconds only on the increment that creates the key, so a
// counter's window doesn't get perpetually extended by later writes.
const counterIncrScript = `
local existed = redis.call('EXISTS', KEYS[1]) == 1
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if not existed and tonumber(ARGV[2]) > 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return v
`

func (s *RedisStore) CounterIncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	res, err := s.Eval(ctx, counterIncrScript, []string{key}, n, int64(ttl.Seconds()))
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (s *RedisStore) CounterGet(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func (s *RedisStore) Eval(ctx context.Context, src string, keys []string, args ...any) (any, error) {
	v, _ := s.scripts.LoadOrStore(src, redis.NewScript(src))
	script := v.(*redis.Script)
	return script.Run(ctx, s.rdb, keys, args...).Result()
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		var f float64
		fmt.Sscanf(t, "%f", &f)
		return f
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}
