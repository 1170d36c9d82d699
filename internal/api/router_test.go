package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ingredient-engine/internal/api/handlers"
	"ingredient-engine/internal/api/handlers/health"
	"ingredient-engine/internal/app"
	"ingredient-engine/internal/core/catalog/catalogtest"
	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/grocery"
	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(catalogURL string) *config.Config {
	return &config.Config{
		App:        config.AppConfig{Env: "test", Version: "test-1"},
		Server:     config.ServerConfig{Port: 8080, WriteTimeout: 10 * time.Second, MaxBodyBytes: 1 << 20},
		Catalog:    config.CatalogConfig{Enabled: catalogURL != "", BaseURL: catalogURL, Timeout: 2 * time.Second},
		LocalStore: config.LocalStoreConfig{Path: ":memory:"},
		Classify: config.ClassifyConfig{
			ItemTimeout:     2 * time.Second,
			ListTimeout:     2 * time.Second,
			Workers:         4,
			FuzzyLimit:      5,
			VectorK:         3,
			VectorThreshold: 0.85,
		},
		Embedding: config.EmbeddingConfig{Provider: "none"},
		Sync:      config.SyncConfig{StartOnline: true},
	}
}

type fixture struct {
	router *gin.Engine
	app    *app.App
	srv    *catalogtest.Server
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := catalogtest.NewServer()
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	if mutate != nil {
		mutate(cfg)
	}
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	router, err := SetupRouter(cfg, a)
	require.NoError(t, err)
	return &fixture{router: router, app: a, srv: srv}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSetupRouterRequiresServices(t *testing.T) {
	_, err := SetupRouter(testConfig(""), nil)
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[health.HealthResponse](t, w)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test-1", h.Version)
	require.NotNil(t, h.Sync)
	assert.Equal(t, "online", h.Sync.Mode)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[health.ReadinessResponse](t, w)
	assert.Equal(t, "ok", ready.Checks["local_store"])

	// 資料庫關閉後不再就緒
	require.NoError(t, f.app.DB.Close())
	w = f.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", nil).Code)
}

func TestClassifyEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{"name": "Garlic"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[resolution.Resolution](t, w)
	assert.Equal(t, classify.SourceHardcoded, res.Source)
	assert.Equal(t, common.CategoryProduce, res.Category)

	// 未命中仍回傳 200
	w = f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{"name": "Durian"})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[resolution.Resolution](t, w)
	assert.Equal(t, classify.SourceUnclassified, res.Source)
	assert.Equal(t, resolution.AisleUnclassified, res.Aisle)
}

func TestClassifyValidation(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.ErrCodeInvalidRequest, decode[common.ErrorResponse](t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{"name": " !! "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingredients/classify", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTagThenClassifyFromCache(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/ingredients/tag", resolution.TagRequest{Name: "Gochujang", Category: "pantry", Aisle: "Aisle 9"})
	require.Equal(t, http.StatusCreated, w.Code)
	m := decode[common.Mapping](t, w)
	assert.Equal(t, common.ProvenanceManual, m.Source)

	w = f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{"name": "gochujang"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[resolution.Resolution](t, w)
	assert.Equal(t, classify.SourceCache, res.Source)
	assert.Equal(t, "Aisle 9", res.Aisle)

	w = f.do(http.MethodPost, "/api/v1/ingredients/tag", resolution.TagRequest{Name: "kale", Category: "vegetables"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/ingredients/normalize", map[string]string{"name": "Fresh Basil Leaves"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.NormalizeResponse](t, w)
	assert.Equal(t, ingredient.Normalize("Fresh Basil Leaves"), resp.NormalizedName)
}

func TestQuantityEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/quantities/parse", map[string]string{"text": "1 1/2 cups flour"})
	require.Equal(t, http.StatusOK, w.Code)
	parsed := decode[ingredient.ParsedQuantity](t, w)
	assert.InDelta(t, 1.5, parsed.Amount, 1e-9)
	assert.Equal(t, "cups", parsed.Unit)

	w = f.do(http.MethodPost, "/api/v1/quantities/parse", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/quantities/combine", handlers.CombineQuantitiesRequest{
		Quantities: []ingredient.QuantityInput{{Quantity: "2"}, {Quantity: "3"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	combined := decode[ingredient.Combined](t, w)
	assert.Equal(t, "5", combined.Amount)
	assert.Equal(t, 2, combined.UsageCount)
}

func TestGroceryBuildEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/grocery/build", grocery.Request{Mentions: []common.Mention{
		{Name: "Milk", Quantity: "1", Unit: "cup", RecipeID: "r1"},
		{Name: "Garlic", Quantity: "2", Unit: "cloves", RecipeID: "r1"},
		{Name: "garlic", Quantity: "1", Unit: "clove", RecipeID: "r2"},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[grocery.List](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "garlic", list.Items[0].NormalizedKey)
	assert.Equal(t, 2, list.Items[0].UsageCount)
	assert.Equal(t, "milk", list.Items[1].NormalizedKey)
	assert.Zero(t, list.Unclassified)

	w = f.do(http.MethodPost, "/api/v1/grocery/build", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPut, "/api/v1/sync/mode", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "offline", decode[handlers.ModeResponse](t, w).Mode)

	w = f.do(http.MethodPost, "/api/v1/ingredients/tag", resolution.TagRequest{Name: "kale", Category: "produce", StoreID: "s1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/api/v1/sync/flush", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, common.ErrCodeOffline, decode[common.ErrorResponse](t, w).Code)

	w = f.do(http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[resolution.Status](t, w)
	assert.Equal(t, "offline", status.Mode)
	assert.Equal(t, 1, status.Pending)
	assert.True(t, status.Remote)

	// 恢復連線時立即同步
	w = f.do(http.MethodPut, "/api/v1/sync/mode", map[string]bool{"online": true})
	require.Equal(t, http.StatusOK, w.Code)
	mode := decode[handlers.ModeResponse](t, w)
	assert.Equal(t, "online", mode.Mode)
	require.NotNil(t, mode.Flush)
	assert.Equal(t, localstore.FlushResult{Delivered: 1}, *mode.Flush)
	assert.Len(t, f.srv.Contributions(), 1)

	w = f.do(http.MethodPost, "/api/v1/sync/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, localstore.FlushResult{}, decode[localstore.FlushResult](t, w))

	w = f.do(http.MethodPut, "/api/v1/sync/mode", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlushPartialFailure(t *testing.T) {
	f := newFixture(t, nil)

	for _, name := range []string{"kale", "leek"} {
		w := f.do(http.MethodPost, "/api/v1/ingredients/tag", resolution.TagRequest{Name: name, Category: "produce"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	f.srv.FailNext(1, http.StatusServiceUnavailable)

	w := f.do(http.MethodPost, "/api/v1/sync/flush", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[handlers.FlushErrorResponse](t, w)
	assert.Equal(t, common.ErrCodeSyncFailed, resp.Code)
	assert.Equal(t, localstore.FlushResult{Remaining: 2}, resp.Result)
}

func TestFlushWithoutCatalog(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Catalog = config.CatalogConfig{}
	})

	w := f.do(http.MethodPost, "/api/v1/sync/flush", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, common.ErrCodeServiceUnavailable, decode[common.ErrorResponse](t, w).Code)
}

func TestBodyLimitAndDeduplication(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.MaxBodyBytes = 64
		cfg.DedupWindow = time.Minute
	})

	w := f.do(http.MethodPost, "/api/v1/ingredients/classify", map[string]string{"name": strings.Repeat("a", 100)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body := map[string]string{"name": "garlic"}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/ingredients/classify", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/v1/ingredients/classify", body).Code)
}

func TestRateLimitEnabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/live", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/live", nil).Code)
}
