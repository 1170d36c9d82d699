package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// context 中注入的依賴
const (
	ConfigKey = "config"
	DBKey     = "db"
	SyncKey   = "sync"
)

const readyTimeout = 2 * time.Second

// Pinger 本地資料庫連線檢查
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatusReporter 提供同步狀態
type StatusReporter interface {
	Status(ctx context.Context) (resolution.Status, error)
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Sync      *resolution.Status     `json:"sync,omitempty"`
}

// ReadinessResponse 就緒檢查響應
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck 健康檢查處理器
func HealthCheck(c *gin.Context) {
	cfg, ok := c.MustGet(ConfigKey).(*config.Config)
	if !ok {
		common.LogError("Invalid configuration type in context")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{
			Code:    common.ErrCodeInternalError,
			Message: "invalid configuration",
		})
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}

	if reporter, ok := c.Value(SyncKey).(StatusReporter); ok {
		status, err := reporter.Status(c.Request.Context())
		if err != nil {
			common.LogWarn("讀取同步狀態失敗", zap.Error(err))
			response.Status = "degraded"
		} else {
			response.Sync = &status
		}
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 本地資料庫可用時才算就緒；離線模式不影響就緒狀態
func ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Checks: map[string]string{}}

	if db, ok := c.Value(DBKey).(Pinger); ok {
		if err := db.PingContext(ctx); err != nil {
			common.LogError("本地資料庫無法連線", zap.Error(err))
			resp.Status = "not_ready"
			resp.Checks["local_store"] = err.Error()
		} else {
			resp.Checks["local_store"] = "ok"
		}
	}

	if reporter, ok := c.Value(SyncKey).(StatusReporter); ok {
		if status, err := reporter.Status(ctx); err != nil {
			resp.Status = "not_ready"
			resp.Checks["sync"] = err.Error()
		} else {
			resp.Checks["mode"] = status.Mode
		}
	}

	if resp.Status != "ready" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// LivenessCheck 存活檢查處理器
func LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "alive",
		"goroutines": runtime.NumGoroutine(),
	})
}
