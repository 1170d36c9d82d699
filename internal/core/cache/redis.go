package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Redis Redis 快取後端
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis 連線 Redis 並測試連接
func NewRedis(cfg config.RedisConfig, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("Redis 快取已連線", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewRedisWithClient(client, cfg.Prefix, ttl), nil
}

// NewRedisWithClient 使用既有的 client
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Get 獲取緩存；Redis 錯誤視為未命中
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			common.LogWarn("Redis 讀取失敗", zap.String("鍵", key), zap.Error(err))
		}
		common.LogCacheMiss("redis")
		return "", false
	}
	common.LogCacheHit("redis")
	return val, true
}

// Set 設置緩存
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Ping 檢查連線，供健康檢查使用
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 關閉連線
func (r *Redis) Close() error {
	return r.client.Close()
}
