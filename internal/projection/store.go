package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a best-effort, TTL'd mirror of durable state plus a handful of
// generic Redis primitives (hashes, lists, pub/sub, fixed-window counters).
// It is never authoritative: correctness-critical reads go to Postgres.
type Store struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// New connects to Redis and returns a scoped projection store.
// All keys are namespaced under prefix.
func New(addr string, db int, pass, prefix string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: pass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, prefix: prefix, logger: logger}, nil
}

// NewWithClient wraps an existing Redis client (used by tests with miniredis).
func NewWithClient(rdb *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// SetJSON stores value as JSON under key with the given TTL.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(key), data, ttl).Err()
}

// GetJSON loads the JSON value under key into dest. Returns false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a single key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// DeletePattern removes every key matching pattern (glob syntax, scoped to
// the store prefix). Uses SCAN so it is safe on large keyspaces.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var deleted int
	iter := s.rdb.Scan(ctx, 0, s.key(pattern), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// HSet sets a single hash field.
func (s *Store) HSet(ctx context.Context, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key(key), field, data).Err()
}

// HGet loads a single hash field into dest. Returns false on a miss.
func (s *Store) HGet(ctx context.Context, key, field string, dest any) (bool, error) {
	data, err := s.rdb.HGet(ctx, s.key(key), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// HGetAll returns all raw fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.key(key)).Result()
}

// RPush appends values to the list under key.
func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.rdb.RPush(ctx, s.key(key), args...).Err()
}

// LPop removes and returns the head of the list. Returns false when empty.
func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.LPop(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// LRange returns list elements in [start, stop].
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, s.key(key), start, stop).Result()
}

// Expire sets a TTL on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, s.key(key), ttl).Err()
}

// Publish sends a JSON payload on a pub/sub channel.
func (s *Store) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.key(channel), data).Err()
}

// IncrementRateLimit bumps a fixed-window counter and returns the new count.
// The first increment of a window sets the expiry; later increments within
// the window only bump the counter. After expiry the next call starts at 1.
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.key(key)
	count, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, k, window).Err(); err != nil {
			s.logger.Warn("projection.rate_limit_expire_failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return count, nil
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
