package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ingredient-engine/internal/core/cache"
	"ingredient-engine/internal/pkg/common"
	"ingredient-engine/internal/pkg/throttle"

	"go.uber.org/zap"
)

// Completer 可送出 prompt 並取得文字回應的 AI 後端
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service AI 分類服務
type Service struct {
	completer Completer
	cache     cache.Cache
	limiter   *throttle.Limiter
}

// NewService 創建 AI 服務；cache 可為 nil，limiter 只套用在整份清單的批次呼叫
func NewService(completer Completer, c cache.Cache, limiter *throttle.Limiter) *Service {
	return &Service{
		completer: completer,
		cache:     c,
		limiter:   limiter,
	}
}

const itemCacheNamespace = "ai:classify"

var categoryList = func() string {
	names := make([]string, len(common.Categories))
	for i, c := range common.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}()

func itemPrompt(name string) string {
	return fmt.Sprintf(`Classify the grocery ingredient %q for a supermarket shopping list.
Respond with ONLY a JSON object: {"category": one of [%s], "aisle": short aisle name, "confidence": number between 0 and 1}.`,
		name, categoryList)
}

func batchPrompt(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf(`Classify each grocery ingredient for a supermarket shopping list: [%s].
Respond with ONLY a JSON object: {"items": [{"name": ingredient as given, "category": one of [%s], "aisle": short aisle name, "confidence": number between 0 and 1}]}.`,
		strings.Join(quoted, ", "), categoryList)
}

// ClassifyIngredient 以 AI 分類單一食材，成功結果寫入快取
func (s *Service) ClassifyIngredient(ctx context.Context, name string) (Classification, error) {
	if c, ok := s.cached(ctx, name); ok {
		return c, nil
	}

	start := time.Now()
	content, err := s.completer.Complete(ctx, itemPrompt(name))
	common.LogAICall("classify_item", time.Since(start), err)
	if err != nil {
		return Classification{}, err
	}

	c, err := ParseClassification(content)
	if err != nil {
		common.LogWarn("AI 分類回應格式錯誤", zap.String("ingredient", name), zap.Error(err))
		return Classification{}, err
	}

	s.store(ctx, name, c)
	return c, nil
}

// ClassifyBatch 以一次受節流的 AI 呼叫分類多個食材
//
// 已在快取中的名稱不會送出；回傳值以正規化名稱為鍵，未出現在回應中的名稱不在結果內。
func (s *Service) ClassifyBatch(ctx context.Context, names []string) (map[string]Classification, error) {
	result := make(map[string]Classification, len(names))
	pending := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if c, ok := s.cached(ctx, name); ok {
			result[name] = c
			continue
		}
		pending = append(pending, name)
	}
	if len(pending) == 0 {
		return result, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result, fmt.Errorf("waiting for AI throttle: %w", common.ErrUpstreamTimeout)
		}
		return result, err
	}

	start := time.Now()
	content, err := s.completer.Complete(ctx, batchPrompt(pending))
	common.LogAICall("classify_batch", time.Since(start), err)
	if err != nil {
		return result, err
	}

	parsed, err := ParseBatch(content)
	if err != nil {
		common.LogWarn("AI 批次分類回應格式錯誤", zap.Int("items", len(pending)), zap.Error(err))
		return result, err
	}

	for _, name := range pending {
		if c, ok := parsed[name]; ok {
			result[name] = c
			s.store(ctx, name, c)
		}
	}
	return result, nil
}

func (s *Service) cached(ctx context.Context, name string) (Classification, bool) {
	if s.cache == nil {
		return Classification{}, false
	}
	raw, ok := s.cache.Get(ctx, cache.Key(itemCacheNamespace, name))
	if !ok {
		return Classification{}, false
	}
	var c Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Classification{}, false
	}
	return c, true
}

func (s *Service) store(ctx context.Context, name string, c Classification) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.Key(itemCacheNamespace, name), string(data)); err != nil {
		common.LogWarn("AI 分類結果寫入快取失敗", zap.String("ingredient", name), zap.Error(err))
	}
}
