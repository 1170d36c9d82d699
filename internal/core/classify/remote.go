package classify

import (
	"context"

	aiservice "ingredient-engine/internal/core/ai/service"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// Catalog 遠端目錄的查詢介面，由 *catalog.Client 實作
type Catalog interface {
	Lookup(ctx context.Context, key, chainID string) (*common.Mapping, error)
	Override(ctx context.Context, storeID, ingredientID string) (*common.Mapping, error)
}

// CatalogTier 遠端目錄，帶門市時再套用門市覆寫
type CatalogTier struct {
	catalog Catalog
}

// NewCatalogTier 建立目錄層級
func NewCatalogTier(c Catalog) *CatalogTier {
	return &CatalogTier{catalog: c}
}

func (*CatalogTier) Name() string { return "catalog" }

func (*CatalogTier) Remote() bool { return true }

func (t *CatalogTier) Resolve(ctx context.Context, q Query) (*Result, error) {
	m, err := t.catalog.Lookup(ctx, q.Key, q.ChainID)
	if err != nil || m == nil {
		return nil, err
	}
	if m.DisplayName == "" {
		m.DisplayName = q.DisplayName
	}
	res := &Result{Mapping: *m, Source: SourceCatalog}

	if q.StoreID == "" || m.IngredientID == "" {
		return res, nil
	}
	override, err := t.catalog.Override(ctx, q.StoreID, m.IngredientID)
	if err != nil {
		// 覆寫查詢失敗時仍使用目錄結果
		common.LogWarn("門市覆寫查詢失敗",
			zap.String("store_id", q.StoreID),
			zap.String("ingredient", q.Key),
			zap.Error(err),
		)
		return res, nil
	}
	if override == nil {
		return res, nil
	}

	res.Mapping.StoreID = q.StoreID
	if override.Department != "" {
		res.Mapping.Department = override.Department
	}
	if override.Zone != "" {
		res.Mapping.Zone = override.Zone
	}
	if override.Confidence > 0 {
		res.Mapping.Confidence = override.Confidence
	}
	res.Source = SourceOverride
	return res, nil
}

// Classifier AI 分類服務
type Classifier interface {
	ClassifyIngredient(ctx context.Context, name string) (aiservice.Classification, error)
}

// AITier 以 AI 推論分類
type AITier struct {
	classifier Classifier
}

// NewAITier 建立 AI 層級
func NewAITier(c Classifier) *AITier {
	return &AITier{classifier: c}
}

// AITierName AI 層級名稱，可用於 Options.Skip
const AITierName = "ai"

func (*AITier) Name() string { return AITierName }

func (*AITier) Remote() bool { return true }

func (t *AITier) Resolve(ctx context.Context, q Query) (*Result, error) {
	c, err := t.classifier.ClassifyIngredient(ctx, q.Key)
	if err != nil {
		return nil, err
	}
	return &Result{Mapping: FromClassification(q, c), Source: SourceLLM}, nil
}

// FromClassification 將 AI 分類轉為全域分類記錄
func FromClassification(q Query, c aiservice.Classification) common.Mapping {
	return common.Mapping{
		NormalizedName: q.Key,
		DisplayName:    q.DisplayName,
		Department:     c.Category,
		Zone:           c.Aisle,
		Confidence:     c.Confidence,
		Source:         common.ProvenanceLLM,
	}
}
