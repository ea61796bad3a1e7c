package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStateStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStateStore returns a Redis-backed fast tier. Keys are namespaced by
// prefix so Clear only drops this till's keys.
func NewRedisStateStore(client *redis.Client, prefix string) StateStore {
	return &redisStateStore{client: client, prefix: prefix}
}

func (s *redisStateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return mapRedisErr(s.client.Set(ctx, s.prefix+key, value, ttl).Err())
}

func (s *redisStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (s *redisStateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *redisStateStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	return n > 0, err
}

func (s *redisStateStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// mapRedisErr turns maxmemory rejections into ErrQuotaExceeded.
func mapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) && strings.HasPrefix(redisErr.Error(), "OOM") {
		return ErrQuotaExceeded
	}
	return err
}
