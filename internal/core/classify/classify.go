// Package classify 依序嘗試各分類層級，第一個命中的結果即為答案
package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// Source 分類結果由哪一層產生
type Source string

const (
	SourceHardcoded    Source = "hardcoded"
	SourceCache        Source = "cache"
	SourceCacheFuzzy   Source = "cache-fuzzy"
	SourceVector       Source = "vector"
	SourceCatalog      Source = "catalog"
	SourceOverride     Source = "override"
	SourceLLM          Source = "llm"
	SourceOffline      Source = "offline"
	SourceUnclassified Source = "unclassified"
)

// FromNetwork 是否由遠端層級取得
func (s Source) FromNetwork() bool {
	switch s {
	case SourceCatalog, SourceOverride, SourceLLM:
		return true
	}
	return false
}

// Query 一次分類查詢；Key 必須已正規化
type Query struct {
	Key         string
	DisplayName string
	StoreID     string
	ChainID     string
}

// Result 命中結果
type Result struct {
	Mapping common.Mapping
	Source  Source
}

// Tier 分類層級；未命中回傳 (nil, nil)
type Tier interface {
	Name() string
	Remote() bool
	Resolve(ctx context.Context, q Query) (*Result, error)
}

// Options 單次查詢的層級篩選
type Options struct {
	// Offline 為 true 時跳過所有遠端層級
	Offline bool
	// Skip 依名稱略過的層級
	Skip []string
}

func (o Options) skips(t Tier) bool {
	if o.Offline && t.Remote() {
		return true
	}
	for _, name := range o.Skip {
		if name == t.Name() {
			return true
		}
	}
	return false
}

// Chain 有序的分類層級
type Chain struct {
	tiers []Tier
}

// NewChain 依傳入順序建立；nil 層級會被略過
func NewChain(tiers ...Tier) *Chain {
	c := &Chain{}
	for _, t := range tiers {
		if t != nil {
			c.tiers = append(c.tiers, t)
		}
	}
	return c
}

// Tiers 目前的層級名稱
func (c *Chain) Tiers() []string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name()
	}
	return names
}

// Resolve 逐層查詢直到命中
//
// 單一層級的錯誤只記錄並視為未命中；全部未命中時回傳包含 ErrClassificationMiss 與各層錯誤的 joined error。
func (c *Chain) Resolve(ctx context.Context, q Query, opts Options) (*Result, error) {
	var errs []error
	for _, tier := range c.tiers {
		if opts.skips(tier) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := tier.Resolve(ctx, q)
		if err != nil {
			common.LogDebug("分類層級失敗",
				zap.String("tier", tier.Name()),
				zap.String("ingredient", q.Key),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, errors.Join(append([]error{common.ErrClassificationMiss}, errs...)...)
}

type timeoutTier struct {
	Tier
	timeout time.Duration
}

// WithTimeout 為層級加上時間上限；逾時即放棄該次呼叫並回傳 ErrUpstreamTimeout
func WithTimeout(t Tier, d time.Duration) Tier {
	if t == nil || d <= 0 {
		return t
	}
	return &timeoutTier{Tier: t, timeout: d}
}

type tierOutcome struct {
	res *Result
	err error
}

func (t *timeoutTier) Resolve(ctx context.Context, q Query) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan tierOutcome, 1)
	go func() {
		res, err := t.Tier.Resolve(ctx, q)
		done <- tierOutcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", common.ErrUpstreamTimeout, out.err)
		}
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", common.ErrUpstreamTimeout, t.Name(), t.timeout)
		}
		return nil, ctx.Err()
	}
}
