// Package embedding 產生食材名稱的向量，供本地快取做相似度比對
package embedding

import (
	"context"
	"fmt"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// Engine 向量產生器
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// NewEngine 依設定建立向量產生器；provider 為 none 時回傳 nil，代表停用向量搜尋
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	var (
		engine Engine
		err    error
	)

	switch cfg.Provider {
	case "", "none":
		common.LogInfo("向量搜尋已停用")
		return nil, nil
	case "ollama":
		engine = NewOllamaEngine(cfg.Endpoint, cfg.Model)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'none', 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	common.LogInfo("向量產生器已建立",
		zap.String("engine", engine.Name()),
		zap.Int("dimensions", engine.Dimensions()),
	)
	return engine, nil
}
