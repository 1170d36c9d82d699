// Package openrouter OpenRouter chat completions 客戶端
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client OpenRouter 客戶端
type Client struct {
	config config.OpenRouterConfig
	client *resty.Client
}

// NewClient 創建 OpenRouter 客戶端
func NewClient(cfg config.OpenRouterConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("HTTP-Referer", "https://ingredient-engine.local").
		SetHeader("X-Title", "Ingredient Engine")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		config: cfg,
		client: client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 送出單一 user 訊息並回傳第一個 choice 的內容
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	req := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: strings.TrimSpace(prompt)},
		},
		MaxTokens: c.config.MaxTokens,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("openrouter request: %w", common.ErrUpstreamTimeout)
		}
		return "", fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		body := truncate(resp.String(), 512)
		common.LogWarn("OpenRouter 回應非 200",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("耗時", time.Since(start)),
		)
		if common.IsRejectedStatus(resp.StatusCode()) {
			return "", &common.UpstreamRejectedError{StatusCode: resp.StatusCode(), Body: body}
		}
		return "", fmt.Errorf("OpenRouter API returned status %d: %s", resp.StatusCode(), body)
	}

	// 解析回應
	var result chatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenRouter response")
	}

	return result.Choices[0].Message.Content, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
