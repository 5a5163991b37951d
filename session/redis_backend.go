package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "pa:led:"
	scanBatch        = 256
	minRecordTTL     = time.Second
)

// RedisBackend persists ledger records as plain Redis strings under
// <prefix><kind>:<key>, each with its own expiry.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisBackend returns a backend over client. An empty prefix selects
// "pa:led:".
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisBackend{redis: client, prefix: prefix}
}

func (b *RedisBackend) key(kind Kind, key string) string {
	return b.prefix + string(kind) + ":" + key
}

// Save writes value with ttl, floored at one second.
//
//	Performance: 1 Redis SET.
func (b *RedisBackend) Save(ctx context.Context, kind Kind, key string, value []byte, ttl time.Duration) error {
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	if err := b.redis.Set(ctx, b.key(kind, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete removes keys of kind. Missing keys are not an error.
//
//	Performance: 1 Redis DEL.
func (b *RedisBackend) Delete(ctx context.Context, kind Kind, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.key(kind, k)
	}
	if err := b.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Load scans every record of kind and hands it to fn. Keys that expire
// between the scan and the read are skipped.
//
//	Performance: SCAN in batches of 256, one pipelined GET per batch.
func (b *RedisBackend) Load(ctx context.Context, kind Kind, fn func(key string, value []byte) error) error {
	match := b.key(kind, "*")
	strip := b.key(kind, "")

	var cursor uint64
	for {
		keys, next, err := b.redis.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}

		if len(keys) > 0 {
			pipe := b.redis.Pipeline()
			cmds := make([]*redis.StringCmd, len(keys))
			for i, k := range keys {
				cmds[i] = pipe.Get(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			for i, cmd := range cmds {
				raw, err := cmd.Bytes()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
				}
				if err := fn(strings.TrimPrefix(keys[i], strip), raw); err != nil {
					return err
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
