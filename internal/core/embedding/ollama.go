package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaEngine 透過本地 Ollama 伺服器產生向量
type OllamaEngine struct {
	model  string
	client *resty.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEngine 創建 Ollama 向量產生器
func NewOllamaEngine(endpoint, model string) *OllamaEngine {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}

	return &OllamaEngine{
		model: model,
		client: resty.New().
			SetBaseURL(strings.TrimRight(endpoint, "/")).
			SetTimeout(30 * time.Second),
	}
}

// Embed 產生單一文字的向量
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var result ollamaEmbedResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(ollamaEmbedRequest{Model: e.model, Prompt: text}).
		SetResult(&result).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return result.Embedding, nil
}

// Dimensions embeddinggemma 為 768 維，其他模型可能不同
func (e *OllamaEngine) Dimensions() int {
	return 768
}

// Name 引擎名稱
func (e *OllamaEngine) Name() string {
	return fmt.Sprintf("ollama:%s", e.model)
}
