package catalog_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"ingredient-engine/internal/core/catalog"
	"ingredient-engine/internal/core/catalog/catalogtest"
	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newClient(t *testing.T) (*catalog.Client, *catalogtest.Server) {
	t.Helper()
	srv := catalogtest.NewServer()
	t.Cleanup(srv.Close)
	return catalog.NewClient(config.CatalogConfig{BaseURL: srv.URL, APIKey: "anon", Timeout: 2 * time.Second}), srv
}

func TestLookupMissIsNotAnError(t *testing.T) {
	client, _ := newClient(t)

	got, err := client.Lookup(context.Background(), "dragon fruit", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookupPrefersChainRow(t *testing.T) {
	client, srv := newClient(t)
	srv.AddRow(catalog.Row{ID: "g1", NormalizedName: "tofu", Category: "produce", Aisle: "Produce", Confidence: 0.6})
	srv.AddRow(catalog.Row{ID: "c1", NormalizedName: "tofu", Category: "dairy", Aisle: "Refrigerated", Confidence: 0.8, ChainID: strPtr("acme")})
	srv.AddRow(catalog.Row{ID: "c2", NormalizedName: "tofu", Category: "frozen", Aisle: "Frozen", ChainID: strPtr("other")})
	ctx := context.Background()

	global, err := client.Lookup(ctx, "tofu", "")
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, common.CategoryProduce, global.Department)
	assert.Equal(t, "g1", global.IngredientID)

	chain, err := client.Lookup(ctx, "tofu", "acme")
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.Equal(t, common.CategoryDairy, chain.Department)
	assert.Equal(t, "acme", chain.ChainID)
	assert.Equal(t, common.ScopeChain, chain.Scope())
}

func TestLookupUnknownCategoryFallsBackToOther(t *testing.T) {
	client, srv := newClient(t)
	srv.AddRow(catalog.Row{ID: "g1", NormalizedName: "mochi", Category: "asian foods", Aisle: "Aisle 12", Confidence: 0.7})

	got, err := client.Lookup(context.Background(), "mochi", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, common.CategoryOther, got.Department)
	assert.Equal(t, "Aisle 12", got.Zone)
}

func TestLookupServerError(t *testing.T) {
	client, srv := newClient(t)
	srv.FailNext(1, http.StatusInternalServerError)

	_, err := client.Lookup(context.Background(), "tofu", "")
	assert.Error(t, err)
}

func TestOverride(t *testing.T) {
	client, srv := newClient(t)
	srv.AddOverride(catalog.Row{IngredientID: "g1", NormalizedName: "tofu", Category: "dairy", Aisle: "Aisle 7", Confidence: 1, StoreID: strPtr("store-9")})
	ctx := context.Background()

	got, err := client.Override(ctx, "store-9", "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Aisle 7", got.Zone)
	assert.Equal(t, common.ScopeStore, got.Scope())

	got, err = client.Override(ctx, "store-1", "g1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = client.Override(ctx, "", "g1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertIsIdempotent(t *testing.T) {
	client, srv := newClient(t)
	ctx := context.Background()
	m := common.Mapping{NormalizedName: "kale", Department: common.CategoryProduce, Zone: "Greens", Confidence: 0.7, Source: common.ProvenanceLLM}

	require.NoError(t, client.Upsert(ctx, m))
	m.Confidence = 0.9
	require.NoError(t, client.Upsert(ctx, m))

	row, ok := srv.CatalogRow("kale", "")
	require.True(t, ok)
	assert.InDelta(t, 0.9, row.Confidence, 1e-9)
	assert.Equal(t, 2, srv.Requests("POST /ingredient_catalog"))
}

func TestSubmitContribution(t *testing.T) {
	client, srv := newClient(t)
	ctx := context.Background()
	c := common.Contribution{
		ID:      "c-1",
		Mapping: common.Mapping{NormalizedName: "kale", StoreID: "store-9", Department: common.CategoryProduce, Source: common.ProvenanceManual},
	}

	require.NoError(t, client.SubmitContribution(ctx, c))
	require.NoError(t, client.SubmitContribution(ctx, c))

	got := srv.Contributions()
	require.Len(t, got, 1)
	assert.Equal(t, "c-1", got[0].ContributionID)
	assert.Equal(t, "store-9", *got[0].StoreID)

	srv.FailNext(1, http.StatusServiceUnavailable)
	assert.Error(t, client.SubmitContribution(ctx, c))
}

func TestTimeoutIsUpstreamTimeout(t *testing.T) {
	client, _ := newClient(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := client.Lookup(ctx, "tofu", "")
	assert.ErrorIs(t, err, common.ErrUpstreamTimeout)
}
