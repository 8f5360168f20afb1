// Package redisrev keeps revoked tokens in a Redis sorted set scored by the
// revocation time, so purging is a single range delete.
package redisrev

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"distributor.app/internal/auth"
)

const defaultKey = "distributor:revoked_tokens"

// Store implements auth.RevocationStore on Redis.
type Store struct {
	client *redis.Client
	key    string
}

var _ auth.RevocationStore = (*Store)(nil)

// Open parses url, connects and pings the server.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, defaultKey), nil
}

// New wraps client; an empty key selects the default set name.
func New(client *redis.Client, key string) *Store {
	if key == "" {
		key = defaultKey
	}
	return &Store{client: client, key: key}
}

func (s *Store) Close() error { return s.client.Close() }

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Insert implements auth.RevocationStore.
func (s *Store) Insert(ctx context.Context, key string, at time.Time) (bool, error) {
	added, err := s.client.ZAddNX(ctx, s.key, &redis.Z{Score: score(at), Member: key}).Result()
	if err != nil {
		return false, fmt.Errorf("redis zadd failed: %w", err)
	}
	return added == 1, nil
}

// Exists implements auth.RevocationStore.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	err := s.client.ZScore(ctx, s.key, key).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis zscore failed: %w", err)
	}
	return true, nil
}

// DeleteOlderThan implements auth.RevocationStore.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	// "(" makes the bound exclusive: entries exactly at cutoff stay
	maxScore := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", maxScore).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zremrangebyscore failed: %w", err)
	}
	return n, nil
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }
