package cache

import (
	"context"
	"log/slog"
	"time"

	memcache "github.com/yourorg/timetrack/pkg/cache"

	"github.com/yourorg/timetrack/internal/infrastructure/redis"
	"github.com/yourorg/timetrack/internal/reliability/circuitbreaker"
)

// MemoryStore backs the cache with the in-process TTL map. Used when no
// Redis URL is configured and in tests.
type MemoryStore struct {
	inner *memcache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{inner: memcache.New()}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	return s.inner.Get(key)
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.inner.Set(key, value, ttl)
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.inner.Delete(k)
	}
	return nil
}

// RedisStore backs the cache with Redis behind a circuit breaker: when Redis
// fails repeatedly the breaker opens and reads become misses instead of
// stalled requests. Deletes bypass the breaker because skipping an
// invalidation is worse than a slow one.
type RedisStore struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	store := &RedisStore{
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		logger:  logger,
	}
	store.breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("cache breaker state change",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return store
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.breaker.AllowRequest() {
		return nil, false
	}
	data, ok, err := s.client.Get(ctx, key)
	if err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("cache get failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	s.breaker.RecordSuccess()
	return data, ok
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !s.breaker.AllowRequest() {
		return
	}
	if err := s.client.Set(ctx, key, value, ttl); err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	s.breaker.RecordSuccess()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.Delete(ctx, keys...)
}
