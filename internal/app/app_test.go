package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ingredient-engine/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	return &config.Config{
		LocalStore: config.LocalStoreConfig{Path: ":memory:"},
		Cache:      config.CacheConfig{Enabled: true, Backend: "memory", MaxSize: 10, TTL: time.Minute, CleanupInterval: time.Minute},
		Classify:   config.ClassifyConfig{ItemTimeout: time.Second, ListTimeout: time.Second, Workers: 2},
		Embedding:  config.EmbeddingConfig{Provider: "none"},
		Sync:       config.SyncConfig{StartOnline: true},
	}
}

func TestNewLocalOnly(t *testing.T) {
	a, err := New(context.Background(), baseConfig())
	require.NoError(t, err)
	defer a.Close()

	status, err := a.Resolver.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "local"}, status.Tiers)
	assert.False(t, status.Remote)
	assert.Equal(t, "online", status.Mode)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Builder)
}

func TestNewWithRemoteTiers(t *testing.T) {
	cfg := baseConfig()
	cfg.Catalog = config.CatalogConfig{Enabled: true, BaseURL: "http://127.0.0.1:1", Timeout: time.Second}
	cfg.OpenRouter = config.OpenRouterConfig{Enabled: true, APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", Model: "m"}
	cfg.Sync.StartOnline = false

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	status, err := a.Resolver.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "local", "catalog", "ai"}, status.Tiers)
	assert.True(t, status.Remote)
	assert.Equal(t, "offline", status.Mode)
}

func TestNewRejectsBadLayout(t *testing.T) {
	cfg := baseConfig()
	cfg.Layout.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownCacheBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.Backend = "memcached"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRedisUnavailable(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.Backend = "redis"
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

	var err error
	assert.NotPanics(t, func() {
		_, err = New(context.Background(), cfg)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init cache")
}
