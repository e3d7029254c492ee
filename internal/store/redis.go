// -----------------------------------------------------------------------
// Redis state store adapter - the single coordination backend. Every
// primitive maps 1:1 onto a Redis command so the key layout stays
// compatible with the legacy deployment.
// -----------------------------------------------------------------------

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
)

// RedisStore implements interfaces.StateStore on a go-redis client.
// The client is safe for concurrent use from workers and handler
// background goroutines; it maintains its own connection pool.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg common.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client (used by tests)
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func translateErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return interfaces.ErrNil
	}
	return err
}

// --- Sets ---

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	return s.client.SAdd(ctx, key, toAny(members)...).Err()
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	return s.client.SRem(ctx, key, toAny(members)...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

// --- Lists ---

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	return s.client.RPush(ctx, key, toAny(values)...).Err()
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	return s.client.LPush(ctx, key, toAny(values)...).Err()
}

func (s *RedisStore) LPop(ctx context.Context, key string) (string, error) {
	val, err := s.client.LPop(ctx, key).Result()
	return val, translateErr(err)
}

// BLPop blocks up to timeout; interfaces.ErrNil signals an empty queue
func (s *RedisStore) BLPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	vals, err := s.client.BLPop(ctx, timeout, key).Result()
	if err != nil {
		return "", translateErr(err)
	}
	// BLPOP replies [key, value]
	if len(vals) < 2 {
		return "", interfaces.ErrNil
	}
	return vals[1], nil
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) LRem(ctx context.Context, key string, count int64, value string) error {
	return s.client.LRem(ctx, key, count, value).Err()
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

// --- Hashes ---

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HSet(ctx, key, fields).Err()
}

func (s *RedisStore) HSetField(ctx context.Context, key, field string, value interface{}) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HSetFieldNX(ctx context.Context, key, field string, value interface{}) error {
	return s.client.HSetNX(ctx, key, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	return val, translateErr(err)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	return s.client.HDel(ctx, key, fields...).Err()
}

// --- Plain keys ---

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	return val, translateErr(err)
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
