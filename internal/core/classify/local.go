package classify

import (
	"context"
	"strings"

	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/vector"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// LocalIndex 本地快取的查詢介面，由 *localstore.Store 實作
type LocalIndex interface {
	Get(ctx context.Context, key, storeID, chainID string) (*common.Mapping, error)
	SearchFuzzy(ctx context.Context, query string, limit int, storeID, chainID string) ([]common.Mapping, error)
	NearestByVector(ctx context.Context, query []int8, k int, storeID, chainID string) ([]localstore.VectorMatch, error)
}

// Embedder 文字轉向量
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalTier 本地快取：精確鍵、模糊搜尋、向量相似度
type LocalTier struct {
	index      LocalIndex
	embedder   Embedder
	fuzzyLimit int
	vectorK    int
	threshold  float64
}

// LocalOption 設定 LocalTier
type LocalOption func(*LocalTier)

// WithEmbedder 啟用向量搜尋
func WithEmbedder(e Embedder, k int, threshold float64) LocalOption {
	return func(t *LocalTier) {
		t.embedder = e
		t.vectorK = k
		t.threshold = threshold
	}
}

// WithFuzzyLimit 模糊搜尋的候選數
func WithFuzzyLimit(n int) LocalOption {
	return func(t *LocalTier) { t.fuzzyLimit = n }
}

// NewLocalTier 建立本地快取層級
func NewLocalTier(index LocalIndex, opts ...LocalOption) *LocalTier {
	t := &LocalTier{index: index, fuzzyLimit: 5, vectorK: 3, threshold: 0.85}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (*LocalTier) Name() string { return "local" }

func (*LocalTier) Remote() bool { return false }

func (t *LocalTier) Resolve(ctx context.Context, q Query) (*Result, error) {
	m, err := t.index.Get(ctx, q.Key, q.StoreID, q.ChainID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return &Result{Mapping: *m, Source: SourceCache}, nil
	}

	if t.fuzzyLimit > 0 {
		candidates, err := t.index.SearchFuzzy(ctx, q.Key, t.fuzzyLimit, q.StoreID, q.ChainID)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if SameHeadNoun(q.Key, c.NormalizedName) {
				return &Result{Mapping: c, Source: SourceCacheFuzzy}, nil
			}
		}
	}

	if t.embedder == nil || t.vectorK <= 0 {
		return nil, nil
	}
	emb, err := t.embedder.Embed(ctx, q.Key)
	if err != nil {
		// 向量服務不可用不影響後續層級
		common.LogDebug("向量查詢略過", zap.String("ingredient", q.Key), zap.Error(err))
		return nil, nil
	}
	matches, err := t.index.NearestByVector(ctx, vector.Quantize(emb, vector.DefaultScale), t.vectorK, q.StoreID, q.ChainID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 || matches[0].Similarity < t.threshold {
		return nil, nil
	}
	best := matches[0]
	common.LogDebug("向量命中",
		zap.String("ingredient", q.Key),
		zap.String("match", best.Mapping.NormalizedName),
		zap.Float64("similarity", best.Similarity),
	)
	return &Result{Mapping: best.Mapping, Source: SourceVector}, nil
}

// SameHeadNoun 兩個名稱是否指同一種食材：最後一個字相同（忽略複數），且較短者的字都出現在較長者中
func SameHeadNoun(a, b string) bool {
	aw := singularWords(a)
	bw := singularWords(b)
	if len(aw) == 0 || len(bw) == 0 {
		return false
	}
	if aw[len(aw)-1] != bw[len(bw)-1] {
		return false
	}
	short, long := aw, bw
	if len(short) > len(long) {
		short, long = long, short
	}
	set := make(map[string]bool, len(long))
	for _, w := range long {
		set[w] = true
	}
	for _, w := range short {
		if !set[w] {
			return false
		}
	}
	return true
}

func singularWords(s string) []string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = singular(w)
	}
	return words
}

func singular(w string) string {
	switch {
	case len(w) <= 3:
		return w
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "oes"), strings.HasSuffix(w, "ches"),
		strings.HasSuffix(w, "shes"), strings.HasSuffix(w, "xes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}
