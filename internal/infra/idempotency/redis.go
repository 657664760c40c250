package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"attendpro/internal/domain/notification"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "attendpro:dispatch:"

// RedisStore reserves keys with SETNX so several backend instances share one dedupe view.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Reserve(ctx context.Context, rec *notification.IdempotencyRecord) (bool, error) {
	cp := *rec
	now := s.now()
	cp.Status = notification.StatusPending
	cp.CreatedAt = now
	cp.UpdatedAt = now
	payload, err := json.Marshal(cp)
	if err != nil {
		return false, fmt.Errorf("encode dispatch record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+rec.DedupeKey, payload, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", rec.DedupeKey, err)
	}
	return ok, nil
}

func (s *RedisStore) MarkSent(ctx context.Context, dedupeKey, messageID string) error {
	return s.update(ctx, dedupeKey, func(r *notification.IdempotencyRecord) {
		r.Status = notification.StatusSent
		r.MessageID = messageID
	})
}

func (s *RedisStore) MarkFailed(ctx context.Context, dedupeKey, reason string) error {
	return s.update(ctx, dedupeKey, func(r *notification.IdempotencyRecord) {
		r.Status = notification.StatusFailed
		r.Error = reason
	})
}

// update rewrites the record and keeps the TTL set at reservation.
func (s *RedisStore) update(ctx context.Context, dedupeKey string, fn func(r *notification.IdempotencyRecord)) error {
	rec, err := s.Get(ctx, dedupeKey)
	if err != nil {
		return err
	}
	fn(rec)
	rec.UpdatedAt = s.now()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode dispatch record: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+dedupeKey, payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update %s: %w", dedupeKey, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, dedupeKey string) (*notification.IdempotencyRecord, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+dedupeKey).Bytes()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", dedupeKey, err)
	}
	rec := &notification.IdempotencyRecord{}
	if err := json.Unmarshal(val, rec); err != nil {
		return nil, fmt.Errorf("decode dispatch record: %w", err)
	}
	return rec, nil
}
