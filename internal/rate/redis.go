package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash
// ARGV capacity, window_ms, now_ms
const takeTokenScript = `
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * capacity / window)

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) * window / capacity)
end
local full = math.ceil((capacity - tokens) * window / capacity)

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], window)
return {allowed, wait, math.floor(tokens), full}
`

var takeTokenLua = redis.NewScript(takeTokenScript)

// RedisLimiter keeps buckets in Redis hashes so every replica draws from the
// same bucket. The refill-and-take step runs as one script and is therefore
// atomic per key.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter validates cfg and returns a limiter over client. Prefix
// defaults to "pa:rl:".
func NewRedisLimiter(client redis.UniversalClient, cfg Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrBackendUnavailable)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pa:rl:"
	}
	return &RedisLimiter{redis: client, config: cfg}, nil
}

func (r *RedisLimiter) key(category Category, key string) string {
	return r.config.Prefix + bucketKey(category, key)
}

// Consume takes one token from the shared bucket of key in category.
func (r *RedisLimiter) Consume(ctx context.Context, key string, category Category) (Decision, error) {
	rule, ok := r.config.Rules[category]
	if !ok {
		return Decision{}, ErrUnknownCategory
	}

	now := r.config.Clock()
	res, err := takeTokenLua.Run(ctx, r.redis,
		[]string{r.key(category, key)},
		rule.Points, rule.Duration.Milliseconds(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply of %d values", ErrBackendUnavailable, len(res))
	}

	if res[0] == 1 {
		return Decision{
			Allowed:   true,
			Remaining: int(res[2]),
			ResetTime: now.Add(time.Duration(res[3]) * time.Millisecond),
		}, nil
	}
	return Decision{
		Allowed:   false,
		ResetTime: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

// Reset deletes the bucket.
func (r *RedisLimiter) Reset(ctx context.Context, key string, category Category) error {
	if _, ok := r.config.Rules[category]; !ok {
		return ErrUnknownCategory
	}
	if err := r.redis.Del(ctx, r.key(category, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Remaining reads the stored token count without refilling it. Missing
// buckets report full capacity.
func (r *RedisLimiter) Remaining(ctx context.Context, key string, category Category) (int, error) {
	rule, ok := r.config.Rules[category]
	if !ok {
		return 0, ErrUnknownCategory
	}
	raw, err := r.redis.HGet(ctx, r.key(category, key), "tokens").Result()
	if errors.Is(err, redis.Nil) {
		return rule.Points, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt bucket: %v", ErrBackendUnavailable, err)
	}
	return int(tokens), nil
}

var _ Limiter = (*RedisLimiter)(nil)
