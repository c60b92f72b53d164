package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alex-user-go/rates/internal/ratelimit"
)

// ErrConflict is returned when a Redis transaction kept losing the race for
// the state key.
var ErrConflict = errors.New("rate limit state changed concurrently")

// RedisStore keeps all buckets as one JSON value under a single key. Updates
// run in a WATCH/MULTI transaction.
type RedisStore struct {
	rdb         redis.UniversalClient
	key         string
	ttl         time.Duration
	maxAttempts int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKey sets the state key.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) { s.key = key }
}

// WithTTL expires the state key after d of inactivity. Zero keeps it forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore creates a store backed by rdb.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:         rdb,
		key:         "rates:ratelimit:state",
		maxAttempts: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Update(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to load buckets: %w", err)
		}

		buckets := decode(data)
		if err := fn(buckets); err != nil {
			return err
		}
		encoded, err := encode(buckets)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) View(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to load buckets: %w", err)
	}
	return fn(decode(data))
}

// Clear deletes the state key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear buckets: %w", err)
	}
	return nil
}
