package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "webhooks:entry:"
	redisReadyKey    = "webhooks:ready"
)

// RedisQueue persists deliveries in Redis: entry bodies as JSON keys, the
// delivery schedule as a sorted set scored by next attempt time. Multiple
// server instances can share it; ZRem arbitrates which instance takes an
// entry.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue connects using a redis:// URL and verifies the connection.
func NewRedisQueue(ctx context.Context, url string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisQueue{client: client}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := q.store(ctx, entry); err != nil {
		return "", err
	}
	err := q.client.ZAdd(ctx, redisReadyKey, redis.Z{
		Score:  float64(entry.NextAttempt.Unix()),
		Member: entry.ID,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("schedule entry: %w", err)
	}
	return entry.ID, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Entry, error) {
	now := time.Now().Unix()
	ids, err := q.client.ZRangeByScore(ctx, redisReadyKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan ready entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	id := ids[0]

	// Removal from the schedule is the lease: only one instance wins.
	removed, err := q.client.ZRem(ctx, redisReadyKey, id).Result()
	if err != nil {
		return nil, fmt.Errorf("lease entry: %w", err)
	}
	if removed == 0 {
		return nil, nil
	}

	data, err := q.client.Get(ctx, redisEntryPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

func (q *RedisQueue) Retry(ctx context.Context, entry Entry) error {
	if err := q.store(ctx, entry); err != nil {
		return err
	}
	err := q.client.ZAdd(ctx, redisReadyKey, redis.Z{
		Score:  float64(entry.NextAttempt.Unix()),
		Member: entry.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("reschedule entry: %w", err)
	}
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	if err := q.client.ZRem(ctx, redisReadyKey, id).Err(); err != nil {
		return fmt.Errorf("unschedule entry: %w", err)
	}
	if err := q.client.Del(ctx, redisEntryPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, redisReadyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.ZRange(ctx, redisReadyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		data, err := q.client.Get(ctx, redisEntryPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load entry %s: %w", id, err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) store(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := q.client.Set(ctx, redisEntryPrefix+entry.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}
