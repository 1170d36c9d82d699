package grocery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	aiservice "ingredient-engine/internal/core/ai/service"
	"ingredient-engine/internal/core/cache"
	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/layout"
	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/infrastructure/database"
	"ingredient-engine/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBatch struct {
	mu      sync.Mutex
	calls   int
	names   [][]string
	results map[string]aiservice.Classification
	err     error
	block   bool
}

func (f *fakeBatch) ClassifyBatch(ctx context.Context, names []string) (map[string]aiservice.Classification, error) {
	f.mu.Lock()
	f.calls++
	f.names = append(f.names, names)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make(map[string]aiservice.Classification)
	for _, n := range names {
		if c, ok := f.results[n]; ok {
			out[n] = c
		}
	}
	return out, err
}

type fixture struct {
	builder *Builder
	ai      *fakeBatch
	store   *localstore.Store
	mode    *resolution.Mode
}

func newFixture(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := localstore.New(db)
	mode := resolution.NewMode(true)
	chain := classify.NewChain(classify.NewExactTier(), classify.NewLocalTier(store))
	resolver := resolution.NewService(chain, store, mode)

	ai := &fakeBatch{results: map[string]aiservice.Classification{
		"gochujang": {Category: common.CategoryPantry, Aisle: "International", Confidence: 0.8},
	}}
	builder := NewBuilder(resolver, ai, layout.Default(), c, Options{
		Workers:     2,
		ItemTimeout: time.Second,
		ListTimeout: 200 * time.Millisecond,
	})
	return &fixture{builder: builder, ai: ai, store: store, mode: mode}
}

func TestBuildAggregatesAcrossRecipes(t *testing.T) {
	f := newFixture(t, nil)

	list, err := f.builder.Build(context.Background(), Request{Mentions: []common.Mention{
		{Name: "Tomatoes", Quantity: "2", RecipeID: "r1"},
		{Name: "Tomatoes", Quantity: "3", RecipeID: "r2"},
	}})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	item := list.Items[0]
	assert.Equal(t, "Tomatoes", item.DisplayName)
	assert.Equal(t, "5", item.CombinedAmount)
	assert.Equal(t, "pieces", item.CombinedUnit)
	assert.Equal(t, 2, item.UsageCount)
	assert.Equal(t, []string{"r1", "r2"}, item.RecipeIDs)
	assert.Equal(t, classify.SourceHardcoded, item.Source)
	assert.Equal(t, common.CategoryProduce, item.Category)
	assert.Equal(t, layout.Default().Position("", common.CategoryProduce), item.Position)
	assert.Zero(t, list.Unclassified)
	assert.Zero(t, f.ai.calls)
}

func TestBuildSortsAndBatchesMisses(t *testing.T) {
	f := newFixture(t, nil)

	list, err := f.builder.Build(context.Background(), Request{Mentions: []common.Mention{
		{Name: "Gochujang", Quantity: "2", Unit: "tbsp", RecipeID: "r1"},
		{Name: "Milk", Quantity: "1", Unit: "cup", RecipeID: "r1"},
		{Name: "Durian", Quantity: "1", RecipeID: "r2"},
		{Name: "Garlic", Quantity: "3", Unit: "cloves", RecipeID: "r2"},
	}})
	require.NoError(t, err)
	require.Len(t, list.Items, 4)

	var names []string
	for _, it := range list.Items {
		names = append(names, it.NormalizedKey)
	}
	assert.Equal(t, []string{"garlic", "milk", "gochujang", "durian"}, names)

	assert.Equal(t, classify.SourceLLM, list.Items[2].Source)
	assert.Equal(t, classify.SourceUnclassified, list.Items[3].Source)
	assert.Equal(t, 1, list.Unclassified)
	assert.Empty(t, list.Warning)

	// 只有一次批次呼叫，且只包含未命中的項目
	require.Equal(t, 1, f.ai.calls)
	assert.ElementsMatch(t, []string{"gochujang", "durian"}, f.ai.names[0])

	// AI 結果寫回本地快取
	cached, err := f.store.Get(context.Background(), "gochujang", "", "")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, common.CategoryPantry, cached.Department)
}

func TestBuildRejectedBatchKeepsList(t *testing.T) {
	f := newFixture(t, nil)
	f.ai.err = &common.UpstreamRejectedError{StatusCode: 429, Body: "rate limited"}
	f.ai.results = nil

	list, err := f.builder.Build(context.Background(), Request{Mentions: []common.Mention{
		{Name: "Garlic", Quantity: "1"},
		{Name: "Durian", Quantity: "1"},
	}})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, 1, list.Unclassified)
	assert.Contains(t, list.Warning, "rate limited")
}

func TestBuildBatchTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.ai.block = true

	start := time.Now()
	list, err := f.builder.Build(context.Background(), Request{Mentions: []common.Mention{
		{Name: "Durian", Quantity: "1"},
	}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, timeoutWarning, list.Warning)
	assert.Equal(t, classify.SourceUnclassified, list.Items[0].Source)
}

func TestBuildOfflineSkipsAI(t *testing.T) {
	f := newFixture(t, nil)
	f.mode.Set(false)

	list, err := f.builder.Build(context.Background(), Request{Mentions: []common.Mention{
		{Name: "Durian", Quantity: "1"},
		{Name: "Garlic", Quantity: "1"},
	}})
	require.NoError(t, err)
	assert.Zero(t, f.ai.calls)

	byKey := map[string]Item{}
	for _, it := range list.Items {
		byKey[it.NormalizedKey] = it
	}
	assert.Equal(t, classify.SourceOffline, byKey["durian"].Source)
	assert.Equal(t, resolution.AisleOffline, byKey["durian"].Aisle)
	assert.Equal(t, classify.SourceHardcoded, byKey["garlic"].Source)
}

func TestBuildUsesListCache(t *testing.T) {
	c := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Minute, CleanupInterval: time.Minute})
	t.Cleanup(func() { c.Close() })
	f := newFixture(t, c)
	req := Request{Mentions: []common.Mention{
		{Name: "Gochujang", Quantity: "1", Unit: "tbsp"},
		{Name: "Milk", Quantity: "1", Unit: "cup"},
	}, StoreID: "s1"}

	first, err := f.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, 1, f.ai.calls)

	// 有未分類項目的清單不快取
	partial := Request{Mentions: []common.Mention{{Name: "Durian", Quantity: "1"}}}
	_, err = f.builder.Build(context.Background(), partial)
	require.NoError(t, err)
	again, err := f.builder.Build(context.Background(), partial)
	require.NoError(t, err)
	assert.False(t, again.Cached)
}

func TestBuildListCacheFollowsTags(t *testing.T) {
	c := cache.NewManager(config.CacheConfig{Enabled: true, MaxSize: 10, TTL: time.Minute, CleanupInterval: time.Minute})
	t.Cleanup(func() { c.Close() })
	f := newFixture(t, c)
	ctx := context.Background()
	req := Request{Mentions: []common.Mention{{Name: "Gochujang", Quantity: "1", Unit: "tbsp"}}, StoreID: "s1"}

	_, err := f.builder.Build(ctx, req)
	require.NoError(t, err)
	cached, err := f.builder.Build(ctx, req)
	require.NoError(t, err)
	require.True(t, cached.Cached)

	_, err = f.builder.resolver.Tag(ctx, resolution.TagRequest{Name: "gochujang", Category: "pantry", Aisle: "Aisle 3", StoreID: "s1"})
	require.NoError(t, err)

	fresh, err := f.builder.Build(ctx, req)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	require.Len(t, fresh.Items, 1)
	assert.Equal(t, "Aisle 3", fresh.Items[0].Aisle)
	assert.Equal(t, 1, f.ai.calls)
}

func TestBuildManyItemsBoundedWorkers(t *testing.T) {
	f := newFixture(t, nil)

	var mentions []common.Mention
	for i := 0; i < 25; i++ {
		mentions = append(mentions, common.Mention{Name: fmt.Sprintf("spice blend %d", i), Quantity: "1", Unit: "tsp"})
	}
	mentions = append(mentions, common.Mention{Name: "Salt", Quantity: "to taste"})

	list, err := f.builder.Build(context.Background(), Request{Mentions: mentions})
	require.NoError(t, err)
	assert.Len(t, list.Items, 26)
	assert.Equal(t, 25, list.Unclassified)
	assert.Equal(t, 1, f.ai.calls)
}

func TestBuildEmptyRequest(t *testing.T) {
	f := newFixture(t, nil)

	list, err := f.builder.Build(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Zero(t, f.ai.calls)
}
