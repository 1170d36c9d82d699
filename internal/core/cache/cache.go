// Package cache 提供帶 TTL 與容量上限的快取，後端可為記憶體或 Redis
package cache

import (
	"context"
	"fmt"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// Cache 快取介面
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// New 依設定建立快取；停用時回傳 nil
func New(cfg *config.Config) (Cache, error) {
	if !cfg.Cache.Enabled {
		common.LogInfo("Cache disabled")
		return nil, nil
	}

	switch cfg.Cache.Backend {
	case "", "memory":
		return NewManager(cfg.Cache), nil
	case "redis":
		r, err := NewRedis(cfg.Redis, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		common.LogError("不支援的快取後端", zap.String("backend", cfg.Cache.Backend))
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

// Key 以命名空間與內容雜湊組成快取鍵
func Key(namespace string, parts ...string) string {
	h := ""
	for _, p := range parts {
		h += p + "\x00"
	}
	return fmt.Sprintf("%s:%s", namespace, common.HashString(h))
}
