package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "verif:sig:"

// RedisStore is a verification cache shared across server instances. Expiry
// rides on Redis native TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis:// URL and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, sig string) (Verdict, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sig).Bytes()
	if errors.Is(err, redis.Nil) {
		return Verdict{}, false, nil
	}
	if err != nil {
		return Verdict{}, false, fmt.Errorf("redis get: %w", err)
	}
	var verdict Verdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return Verdict{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	return verdict, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sig string, verdict Verdict, ttl time.Duration) error {
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sig, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Has(ctx context.Context, sig string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+sig).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, sig string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+sig).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
