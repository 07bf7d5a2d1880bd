package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore はRedisを実体とするStore。
type RedisStore struct {
	// client はgo-redisのクライアント。
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore は既存のクライアントからStoreを生成する。
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis はURL（例: "redis://localhost:6379/0"）で接続し、疎通確認を行う。
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get はキーの値を返す。
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Redis GET %s に失敗: %w", key, err)
	}
	return v, true, nil
}

// Set はキーに値を書き込む。
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("Redis SET %s に失敗: %w", key, err)
	}
	return nil
}

// Delete はキーを削除する。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("Redis DEL %s に失敗: %w", key, err)
	}
	return nil
}

// Close は接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
