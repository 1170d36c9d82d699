// Package app 依設定組裝引擎的各項服務，供 API 伺服器與命令列工具共用
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ingredient-engine/internal/core/ai/openrouter"
	aiservice "ingredient-engine/internal/core/ai/service"
	"ingredient-engine/internal/core/cache"
	"ingredient-engine/internal/core/catalog"
	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/embedding"
	"ingredient-engine/internal/core/grocery"
	"ingredient-engine/internal/core/layout"
	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/infrastructure/database"
	"ingredient-engine/internal/pkg/common"
	"ingredient-engine/internal/pkg/throttle"

	"go.uber.org/zap"
)

// App 組裝完成的服務
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Store    *localstore.Store
	Cache    cache.Cache
	Resolver *resolution.Service
	Builder  *grocery.Builder
	Layouts  *layout.Layouts
}

// New 開啟本地資料庫並建立分類鏈；遠端目錄與 AI 依設定決定是否啟用
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.LocalStore.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a := &App{Config: cfg, DB: db, Store: localstore.New(db)}

	a.Cache, err = cache.New(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedding: %w", err)
	}

	a.Layouts, err = layout.Load(cfg.Layout.Path)
	if err != nil {
		a.Close()
		return nil, err
	}

	localOpts := []classify.LocalOption{classify.WithFuzzyLimit(cfg.Classify.FuzzyLimit)}
	resolverOpts := []resolution.Option{resolution.WithItemTimeout(cfg.Classify.ItemTimeout)}
	if engine != nil {
		localOpts = append(localOpts, classify.WithEmbedder(engine, cfg.Classify.VectorK, cfg.Classify.VectorThreshold))
		resolverOpts = append(resolverOpts, resolution.WithEmbedder(engine))
	}

	tiers := []classify.Tier{
		classify.NewExactTier(),
		classify.NewLocalTier(a.Store, localOpts...),
	}

	if cfg.Catalog.Enabled {
		client := catalog.NewClient(cfg.Catalog)
		tiers = append(tiers, classify.WithTimeout(classify.NewCatalogTier(client), cfg.Classify.ItemTimeout))
		resolverOpts = append(resolverOpts, resolution.WithRemote(client))
	}

	var batch grocery.BatchClassifier
	if cfg.OpenRouter.Enabled {
		limiter := throttle.New(cfg.Classify.AIMinInterval, throttle.RealClock)
		ai := aiservice.NewService(openrouter.NewClient(cfg.OpenRouter), a.Cache, limiter)
		tiers = append(tiers, classify.WithTimeout(classify.NewAITier(ai), cfg.Classify.ItemTimeout))
		batch = ai
	}

	chain := classify.NewChain(tiers...)
	mode := resolution.NewMode(cfg.Sync.StartOnline)
	a.Resolver = resolution.NewService(chain, a.Store, mode, resolverOpts...)
	a.Builder = grocery.NewBuilder(a.Resolver, batch, a.Layouts, a.Cache, grocery.Options{
		Workers:     cfg.Classify.Workers,
		ItemTimeout: cfg.Classify.ItemTimeout,
		ListTimeout: cfg.Classify.ListTimeout,
	})

	mappings, err := a.Store.Count(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("count mappings: %w", err)
	}

	common.LogInfo("服務初始化完成",
		zap.Strings("tiers", chain.Tiers()),
		zap.String("mode", mode.String()),
		zap.Int("mappings", mappings),
		zap.Bool("cache_enabled", a.Cache != nil),
		zap.Bool("embedding_enabled", engine != nil),
		zap.String("openrouter_api_key", config.MaskAPIKey(cfg.OpenRouter.APIKey)),
	)
	return a, nil
}

// Close 關閉快取與資料庫
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
