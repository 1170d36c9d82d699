package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	LocalStore  LocalStoreConfig `mapstructure:"local_store"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Classify    ClassifyConfig   `mapstructure:"classify"`
	Embedding   EmbeddingConfig  `mapstructure:"embedding"`
	Sync        SyncConfig       `mapstructure:"sync"`
	Layout      LayoutConfig     `mapstructure:"layout"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
	LogDir      string           `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CatalogConfig 遠端食材目錄配置
type CatalogConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LocalStoreConfig 本地快取資料庫
type LocalStoreConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ClassifyConfig 分類流程設定
type ClassifyConfig struct {
	ItemTimeout     time.Duration `mapstructure:"item_timeout"`
	ListTimeout     time.Duration `mapstructure:"list_timeout"`
	Workers         int           `mapstructure:"workers"`
	AIMinInterval   time.Duration `mapstructure:"ai_min_interval"`
	FuzzyLimit      int           `mapstructure:"fuzzy_limit"`
	VectorK         int           `mapstructure:"vector_k"`
	VectorThreshold float64       `mapstructure:"vector_threshold"`
}

// EmbeddingConfig 向量模型設定
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	TaskType string `mapstructure:"task_type"`
}

// SyncConfig 同步佇列設定
type SyncConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	StartOnline   bool          `mapstructure:"start_online"`
}

// LayoutConfig 賣場平面圖設定
type LayoutConfig struct {
	Path string `mapstructure:"path"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（可選）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.Reset()

	// 設定預設值
	setDefaults()

	// 設定環境變數前綴
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 綁定環境變量
	bindings := map[string]string{
		"openrouter.api_key":  "OPENROUTER_API_KEY",
		"openrouter.model":    "OPENROUTER_MODEL",
		"openrouter.base_url": "OPENROUTER_BASE_URL",
		"openrouter.enabled":  "OPENROUTER_ENABLED",
		"catalog.base_url":    "CATALOG_BASE_URL",
		"catalog.api_key":     "CATALOG_API_KEY",
		"catalog.enabled":     "CATALOG_ENABLED",
		"local_store.path":    "LOCAL_STORE_PATH",
		"cache.enabled":       "CACHE_ENABLED",
		"cache.backend":       "CACHE_BACKEND",
		"redis.addr":          "REDIS_ADDR",
		"redis.password":      "REDIS_PASSWORD",
		"embedding.provider":  "EMBEDDING_PROVIDER",
		"embedding.api_key":   "GENAI_API_KEY",
		"sync.start_online":   "SYNC_START_ONLINE",
		"layout.path":         "LAYOUT_PATH",
		"rate_limit.enabled":  "RATE_LIMIT_ENABLED",
		"rate_limit.requests": "RATE_LIMIT_REQUESTS",
		"rate_limit.window":   "RATE_LIMIT_WINDOW",
		"dedup_window":        "DEDUP_WINDOW",
		"log_level":           "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, "APP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	// 設定設定檔名稱和路徑
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// 讀取設定檔
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 解析設定
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults() {
	// 應用程式設定
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.name", "ingredient-engine")

	// 伺服器設定
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.max_body_bytes", 1<<20)

	// OpenRouter 設定
	viper.SetDefault("openrouter.enabled", false)
	viper.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("openrouter.model", "qwen/qwen2.5-vl-72b-instruct:free")
	viper.SetDefault("openrouter.max_tokens", 1000)
	viper.SetDefault("openrouter.timeout", "60s")

	// 遠端目錄設定
	viper.SetDefault("catalog.enabled", false)
	viper.SetDefault("catalog.timeout", "5s")

	// 本地資料庫
	viper.SetDefault("local_store.path", "data/ingredients.db")

	// 快取設定
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("cache.cleanup_interval", "10m")

	// Redis 設定
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "ingredient:")

	// 分類設定
	viper.SetDefault("classify.item_timeout", "5s")
	viper.SetDefault("classify.list_timeout", "10s")
	viper.SetDefault("classify.workers", 8)
	viper.SetDefault("classify.ai_min_interval", "3s")
	viper.SetDefault("classify.fuzzy_limit", 5)
	viper.SetDefault("classify.vector_k", 3)
	viper.SetDefault("classify.vector_threshold", 0.85)

	// 向量設定
	viper.SetDefault("embedding.provider", "none")
	viper.SetDefault("embedding.endpoint", "http://localhost:11434")
	viper.SetDefault("embedding.model", "")
	viper.SetDefault("embedding.task_type", "SEMANTIC_SIMILARITY")

	// 同步設定
	viper.SetDefault("sync.flush_interval", "1m")
	viper.SetDefault("sync.start_online", true)

	// 限流設定
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests", 100)
	viper.SetDefault("rate_limit.window", "1m")

	viper.SetDefault("dedup_window", "1s")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_dir", "logs")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case "memory":
			if config.Cache.MaxSize <= 0 {
				return fmt.Errorf("invalid cache max size")
			}
			if config.Cache.CleanupInterval <= 0 {
				return fmt.Errorf("invalid cache cleanup interval")
			}
		case "redis":
			if config.Redis.Addr == "" {
				return fmt.Errorf("redis addr is required for redis cache backend")
			}
		default:
			return fmt.Errorf("unsupported cache backend: %s", config.Cache.Backend)
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
	}

	if config.OpenRouter.Enabled && config.OpenRouter.APIKey == "" {
		return fmt.Errorf("openrouter api key is required when openrouter is enabled")
	}
	if config.Catalog.Enabled && config.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base url is required when catalog is enabled")
	}
	if config.LocalStore.Path == "" {
		return fmt.Errorf("local store path is required")
	}

	// 驗證分類設定
	if config.Classify.Workers <= 0 {
		return fmt.Errorf("invalid classify workers")
	}
	if config.Classify.ItemTimeout <= 0 || config.Classify.ListTimeout <= 0 {
		return fmt.Errorf("invalid classify timeouts")
	}
	if config.Classify.VectorThreshold < -1 || config.Classify.VectorThreshold > 1 {
		return fmt.Errorf("classify vector threshold must be within [-1, 1]")
	}

	switch config.Embedding.Provider {
	case "none", "ollama":
	case "genai":
		if config.Embedding.APIKey == "" {
			return fmt.Errorf("genai api key is required for genai embedding provider")
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	return nil
}
