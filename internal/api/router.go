package api

import (
	"errors"
	"time"

	"ingredient-engine/internal/api/handlers"
	"ingredient-engine/internal/api/handlers/health"
	"ingredient-engine/internal/api/middleware"
	"ingredient-engine/internal/app"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 未設定寫入逾時時的請求期限
const defaultRequestTimeout = 30 * time.Second

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, a *app.App) (*gin.Engine, error) {
	if a == nil || a.Resolver == nil || a.Builder == nil {
		return nil, errors.New("services are not initialized")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	timeout := cfg.Server.WriteTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	router.Use(middleware.Timeout(timeout))

	// 注入健康檢查所需的依賴
	router.Use(func(c *gin.Context) {
		c.Set(health.ConfigKey, cfg)
		c.Set(health.DBKey, a.DB)
		c.Set(health.SyncKey, a.Resolver)
		c.Next()
	})

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	h := handlers.NewHandler(a.Builder, a.Resolver)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Deduplication(cfg))
	{
		v1.POST("/grocery/build", h.BuildGroceryList)

		ingredients := v1.Group("/ingredients")
		{
			ingredients.POST("/classify", h.ClassifyIngredient)
			ingredients.POST("/tag", h.TagIngredient)
			ingredients.POST("/normalize", h.NormalizeIngredient)
		}

		quantities := v1.Group("/quantities")
		{
			quantities.POST("/parse", h.ParseQuantity)
			quantities.POST("/combine", h.CombineQuantities)
		}

		sync := v1.Group("/sync")
		{
			sync.POST("/flush", h.FlushContributions)
			sync.GET("/status", h.SyncStatus)
			sync.PUT("/mode", h.SetMode)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Duration("timeout", timeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
	)

	return router, nil
}
