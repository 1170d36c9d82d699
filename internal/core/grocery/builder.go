// Package grocery 把多份食譜的食材整合成依分類與位置排序的購物清單
package grocery

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	aiservice "ingredient-engine/internal/core/ai/service"
	"ingredient-engine/internal/core/cache"
	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/core/layout"
	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const listCacheNamespace = "grocery:list"

const timeoutWarning = "AI classification timed out; some ingredients were left unclassified."

// BatchClassifier 整份清單一次送出的 AI 分類
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, names []string) (map[string]aiservice.Classification, error)
}

// Request 建立購物清單的請求
type Request struct {
	Mentions []common.Mention `json:"mentions" binding:"required"`
	StoreID  string           `json:"store_id"`
	ChainID  string           `json:"chain_id"`
}

// Item 清單中的一個食材
type Item struct {
	ingredient.AggregatedIngredient
	Category   common.Category `json:"category"`
	Aisle      string          `json:"aisle"`
	Confidence float64         `json:"confidence"`
	Source     classify.Source `json:"source"`
	Position   common.Position `json:"position"`
}

// List 購物清單
type List struct {
	Items        []Item    `json:"items"`
	StoreID      string    `json:"store_id,omitempty"`
	Unclassified int       `json:"unclassified"`
	Warning      string    `json:"warning,omitempty"`
	Cached       bool      `json:"cached"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Options 建立清單時的並行與時間限制
type Options struct {
	Workers     int
	ItemTimeout time.Duration
	ListTimeout time.Duration
}

// Builder 購物清單產生器
type Builder struct {
	resolver *resolution.Service
	ai       BatchClassifier
	layouts  *layout.Layouts
	cache    cache.Cache
	opts     Options
	now      func() time.Time
}

// NewBuilder 建立清單產生器；ai 與 c 可為 nil
func NewBuilder(resolver *resolution.Service, ai BatchClassifier, layouts *layout.Layouts, c cache.Cache, opts Options) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if layouts == nil {
		layouts = layout.Default()
	}
	return &Builder{
		resolver: resolver,
		ai:       ai,
		layouts:  layouts,
		cache:    c,
		opts:     opts,
		now:      time.Now,
	}
}

// Build 合併數量、並行分類並排序
//
// 單一食材逾時或失敗只會讓該項目成為 unclassified；批次 AI 被拒絕時清單仍會回傳，並以 Warning 說明原因。
func (b *Builder) Build(ctx context.Context, req Request) (*List, error) {
	key := b.cacheKey(req)
	if list, ok := b.cached(ctx, key); ok {
		return list, nil
	}

	aggregated := ingredient.Aggregate(req.Mentions)
	resolutions := make([]resolution.Resolution, len(aggregated))

	var g errgroup.Group
	g.SetLimit(b.opts.Workers)
	for i, agg := range aggregated {
		g.Go(func() error {
			resolutions[i] = b.resolveOne(ctx, req, agg)
			return nil
		})
	}
	_ = g.Wait()

	warning := b.classifyMisses(ctx, req, aggregated, resolutions)

	list := &List{
		Items:       make([]Item, len(aggregated)),
		StoreID:     req.StoreID,
		Warning:     warning,
		GeneratedAt: b.now().UTC(),
	}
	for i, agg := range aggregated {
		r := resolutions[i]
		if !r.Resolved() {
			list.Unclassified++
		}
		list.Items[i] = Item{
			AggregatedIngredient: agg,
			Category:             r.Category,
			Aisle:                r.Aisle,
			Confidence:           r.Confidence,
			Source:               r.Source,
			Position:             b.layouts.Position(req.StoreID, r.Category),
		}
	}
	sort.SliceStable(list.Items, func(i, j int) bool {
		a, c := list.Items[i], list.Items[j]
		if a.Category.SortIndex() != c.Category.SortIndex() {
			return a.Category.SortIndex() < c.Category.SortIndex()
		}
		return a.NormalizedKey < c.NormalizedKey
	})

	common.LogInfo("購物清單完成",
		zap.Int("items", len(list.Items)),
		zap.Int("unclassified", list.Unclassified),
		zap.String("store_id", req.StoreID),
	)

	// 有未分類項目時不快取，恢復連線後可重新分類；本次寫回的分類會改變版本，因此重新計算鍵
	if list.Unclassified == 0 {
		b.store(ctx, b.cacheKey(req), list)
	}
	return list, nil
}

func (b *Builder) resolveOne(ctx context.Context, req Request, agg ingredient.AggregatedIngredient) resolution.Resolution {
	r := resolution.Request{Name: agg.DisplayName, StoreID: req.StoreID, ChainID: req.ChainID, SkipAI: true}
	if b.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ItemTimeout)
		defer cancel()
	}
	res, err := b.resolver.Resolve(ctx, r)
	if err != nil {
		return b.resolver.Unresolved(r, err)
	}
	return res
}

// classifyMisses 以一次批次 AI 呼叫處理未分類項目，回傳給使用者的警告訊息
func (b *Builder) classifyMisses(ctx context.Context, req Request, aggregated []ingredient.AggregatedIngredient, resolutions []resolution.Resolution) string {
	if b.ai == nil || !b.resolver.Mode().Online() {
		return ""
	}
	var misses []int
	var names []string
	for i, r := range resolutions {
		if r.Source == classify.SourceUnclassified {
			misses = append(misses, i)
			names = append(names, aggregated[i].NormalizedKey)
		}
	}
	if len(misses) == 0 {
		return ""
	}

	if b.opts.ListTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ListTimeout)
		defer cancel()
	}
	got, err := b.ai.ClassifyBatch(ctx, names)

	for _, i := range misses {
		agg := aggregated[i]
		c, ok := got[agg.NormalizedKey]
		if !ok {
			continue
		}
		r := resolution.Request{Name: agg.DisplayName, StoreID: req.StoreID, ChainID: req.ChainID}
		m := classify.FromClassification(classify.Query{Key: agg.NormalizedKey, DisplayName: agg.DisplayName}, c)
		resolutions[i] = b.resolver.Remember(ctx, r, m, classify.SourceLLM)
	}

	if err == nil {
		return ""
	}
	common.LogWarn("批次 AI 分類失敗", zap.Int("items", len(names)), zap.Error(err))
	if rejected, ok := common.AsUpstreamRejected(err); ok {
		return rejected.UserMessage()
	}
	if errors.Is(err, common.ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutWarning
	}
	return ""
}

func (b *Builder) cacheKey(req Request) string {
	if b.cache == nil {
		return ""
	}
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	// 分類版本納入鍵中，手動標記或同步後舊清單自然失效
	return cache.Key(listCacheNamespace, string(data), strconv.FormatUint(b.resolver.Generation(), 10))
}

func (b *Builder) cached(ctx context.Context, key string) (*List, bool) {
	if key == "" {
		return nil, false
	}
	raw, ok := b.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var list List
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, false
	}
	list.Cached = true
	return &list, true
}

func (b *Builder) store(ctx context.Context, key string, list *List) {
	if key == "" {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, string(data)); err != nil {
		common.LogWarn("購物清單寫入快取失敗", zap.Error(err))
	}
}
