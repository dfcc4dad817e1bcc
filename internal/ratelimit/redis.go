package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript refills and takes one token atomically.
// KEYS[1] bucket hash, ARGV: capacity, refill interval ms, now ms, ttl ms.
// Returns {allowed, tokens} with tokens as a string to keep the fraction.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now
end

local elapsed = now - ts
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed / interval * capacity)
	ts = now
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, tostring(tokens)}
`)

// DefaultRedisPrefix namespaces bucket keys in Redis.
const DefaultRedisPrefix = "ratelimit:"

// RedisStore keeps token buckets in Redis so that all API instances share them.
// Errors are returned to the caller, which decides whether to fail open.
type RedisStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store. A nil clock defaults to time.Now.
func NewRedisStore(client redis.Scripter, clock func() time.Time) *RedisStore {
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
		now:    clock,
	}
}

// Take removes one token from the shared bucket for key.
// Buckets expire after one refill interval of inactivity, at which point
// they would be full anyway.
func (s *RedisStore) Take(ctx context.Context, key string, cfg BucketConfig) (Decision, error) {
	if err := cfg.Validate(); err != nil {
		return Decision{}, err
	}

	intervalMs := cfg.RefillInterval.Milliseconds()
	if intervalMs < 1 {
		intervalMs = 1
	}

	res, err := takeScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		cfg.Capacity,
		intervalMs,
		s.now().UnixMilli(),
		intervalMs,
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run token bucket script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected token bucket reply length %d", len(res))
	}

	allowed, ok := res[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected token bucket reply type %T", res[0])
	}
	raw, ok := res[1].(string)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected token count type %T", res[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to parse token count: %w", err)
	}

	if allowed == 1 {
		return Decision{Allowed: true, Remaining: tokens}, nil
	}
	return Decision{
		Allowed:    false,
		Remaining:  tokens,
		RetryAfter: cfg.retryAfter(tokens),
	}, nil
}
