package resolution

import (
	"context"
	"sync"
	"testing"
	"time"

	aiservice "ingredient-engine/internal/core/ai/service"
	"ingredient-engine/internal/core/catalog"
	"ingredient-engine/internal/core/catalog/catalogtest"
	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/infrastructure/database"
	"ingredient-engine/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	c     aiservice.Classification
	err   error
}

func (f *fakeClassifier) ClassifyIngredient(context.Context, string) (aiservice.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.c, f.err
}

type fixture struct {
	svc   *Service
	store *localstore.Store
	srv   *catalogtest.Server
	ai    *fakeClassifier
	mode  *Mode
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := catalogtest.NewServer()
	t.Cleanup(srv.Close)
	client := catalog.NewClient(config.CatalogConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})

	store := localstore.New(db)
	ai := &fakeClassifier{c: aiservice.Classification{Category: common.CategoryPantry, Aisle: "International", Confidence: 0.8}}
	chain := classify.NewChain(
		classify.NewExactTier(),
		classify.NewLocalTier(store),
		classify.WithTimeout(classify.NewCatalogTier(client), 2*time.Second),
		classify.NewAITier(ai),
	)
	mode := NewMode(online)
	return &fixture{
		svc:   NewService(chain, store, mode, WithRemote(client), WithItemTimeout(5*time.Second)),
		store: store,
		srv:   srv,
		ai:    ai,
		mode:  mode,
	}
}

func TestResolveRejectsEmptyName(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Resolve(context.Background(), Request{Name: "  !! "})
	assert.True(t, common.IsValidationError(err))
}

func TestResolveHardcodedSkipsNetwork(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.svc.Resolve(context.Background(), Request{Name: "Garlic"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceHardcoded, res.Source)
	assert.Equal(t, "Garlic", res.Name)
	assert.True(t, res.Resolved())
	assert.Zero(t, f.srv.TotalRequests())
	assert.Zero(t, f.ai.calls)
}

func TestResolveCatalogHitWritesThrough(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.srv.AddRow(catalog.Row{ID: "ing-1", NormalizedName: "tahini", Category: "pantry", Aisle: "International", Confidence: 0.9})

	res, err := f.svc.Resolve(ctx, Request{Name: "Tahini"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceCatalog, res.Source)
	assert.Equal(t, "International", res.Aisle)

	cached, err := f.store.Get(ctx, "tahini", "", "")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, common.CategoryPantry, cached.Department)

	pending, err := f.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// 第二次由本地快取命中，不再查遠端
	before := f.srv.TotalRequests()
	res, err = f.svc.Resolve(ctx, Request{Name: "tahini"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceCache, res.Source)
	assert.Equal(t, before, f.srv.TotalRequests())
	assert.Zero(t, f.ai.calls)
}

func TestResolveAIHitUpsertsCatalog(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, Request{Name: "Gochujang"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceLLM, res.Source)
	assert.Equal(t, 1, f.ai.calls)

	row, ok := f.srv.CatalogRow("gochujang", "")
	require.True(t, ok)
	assert.Equal(t, "pantry", row.Category)
	assert.Equal(t, "llm", row.Source)

	cached, err := f.store.Get(ctx, "gochujang", "", "")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, common.ProvenanceLLM, cached.Source)
}

func TestResolveSkipAI(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.svc.Resolve(context.Background(), Request{Name: "Gochujang", SkipAI: true})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceUnclassified, res.Source)
	assert.Equal(t, AisleUnclassified, res.Aisle)
	assert.False(t, res.Resolved())
	assert.Zero(t, f.ai.calls)
}

func TestResolveRejectedAIAddsWarning(t *testing.T) {
	f := newFixture(t, true)
	f.ai.err = &common.UpstreamRejectedError{StatusCode: 401, Body: "bad key"}

	res, err := f.svc.Resolve(context.Background(), Request{Name: "Gochujang"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceUnclassified, res.Source)
	assert.Equal(t, common.CategoryOther, res.Category)
	assert.Contains(t, res.Warning, "not authorized")

	pending, err := f.store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOfflineTagThenReconnect(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, Request{Name: "Gochujang", StoreID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceOffline, res.Source)
	assert.Equal(t, AisleOffline, res.Aisle)
	assert.Zero(t, f.srv.TotalRequests())

	_, err = f.svc.Flush(ctx)
	assert.ErrorIs(t, err, common.ErrOffline)

	m, err := f.svc.Tag(ctx, TagRequest{Name: "Gochujang", Category: "Pantry", Aisle: "Aisle 9", StoreID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, common.ProvenanceManual, m.Source)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)

	// 標記後離線也能命中
	res, err = f.svc.Resolve(ctx, Request{Name: "gochujang", StoreID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, classify.SourceCache, res.Source)
	assert.Equal(t, "Aisle 9", res.Aisle)

	result, err := f.svc.SetOnline(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Delivered)
	assert.Len(t, f.srv.Contributions(), 1)

	pending, err := f.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// 已在線時再次設定不會觸發同步
	result, err = f.svc.SetOnline(ctx, true)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestTagValidation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Tag(ctx, TagRequest{Name: "kale", Category: "vegetables"})
	assert.True(t, common.IsValidationError(err))

	_, err = f.svc.Tag(ctx, TagRequest{Name: "", Category: "produce"})
	assert.True(t, common.IsValidationError(err))
}

func TestFlushWithoutRemote(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(classify.NewChain(classify.NewExactTier()), localstore.New(db), NewMode(true))
	_, err = svc.Flush(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "online", status.Mode)
	assert.False(t, status.Remote)
	assert.Equal(t, []string{"exact"}, status.Tiers)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Tag(ctx, TagRequest{Name: "kale", Category: "produce"})
	require.NoError(t, err)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{
		Mode:     "offline",
		Pending:  1,
		Mappings: 1,
		Tiers:    []string{"exact", "local", "catalog", "ai"},
		Remote:   true,
	}, status)
}

func TestRunSyncFlushesWhileOnline(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Tag(ctx, TagRequest{Name: "kale", Category: "produce"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		f.svc.RunSync(runCtx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		n, err := f.store.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Len(t, f.srv.Contributions(), 1)
}

func TestModeSet(t *testing.T) {
	m := NewMode(false)
	assert.False(t, m.Online())
	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.Equal(t, "online", m.String())
	assert.True(t, m.Set(false))
	assert.Equal(t, "offline", m.String())
}
