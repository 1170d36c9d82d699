package common

import (
	"strings"
	"time"
)

// Category 食材分類（AI 回應契約中的 12 種值）
type Category string

const (
	CategoryProduce   Category = "produce"
	CategoryDairy     Category = "dairy"
	CategoryMeat      Category = "meat"
	CategorySeafood   Category = "seafood"
	CategoryBakery    Category = "bakery"
	CategoryFrozen    Category = "frozen"
	CategoryPantry    Category = "pantry"
	CategoryBeverages Category = "beverages"
	CategorySnacks    Category = "snacks"
	CategoryHealth    Category = "health"
	CategoryHousehold Category = "household"
	CategoryOther     Category = "other"
)

// Categories 依顯示順序排列的全部分類
var Categories = []Category{
	CategoryProduce,
	CategoryDairy,
	CategoryMeat,
	CategorySeafood,
	CategoryBakery,
	CategoryFrozen,
	CategoryPantry,
	CategoryBeverages,
	CategorySnacks,
	CategoryHealth,
	CategoryHousehold,
	CategoryOther,
}

// ParseCategory 解析分類字串，不在列舉中時回傳 false
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// SortIndex 分類的排序位置
func (c Category) SortIndex() int {
	for i, known := range Categories {
		if c == known {
			return i
		}
	}
	return len(Categories)
}

// Provenance 分類記錄的來源
type Provenance string

const (
	ProvenanceManual Provenance = "manual"
	ProvenanceCrowd  Provenance = "crowd"
	ProvenanceVector Provenance = "vector"
	ProvenanceLLM    Provenance = "llm"
)

// Scope 分類記錄的作用範圍，數值越大越具體
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeChain
	ScopeStore
)

func (s Scope) String() string {
	switch s {
	case ScopeStore:
		return "store"
	case ScopeChain:
		return "chain"
	default:
		return "global"
	}
}

// Mapping 食材分類記錄
type Mapping struct {
	IngredientID   string     `json:"ingredient_id,omitempty"`
	NormalizedName string     `json:"normalized_name"`
	DisplayName    string     `json:"display_name,omitempty"`
	Department     Category   `json:"department,omitempty"`
	Zone           string     `json:"zone,omitempty"`
	Confidence     float64    `json:"confidence,omitempty"`
	Source         Provenance `json:"source"`
	StoreID        string     `json:"store_id,omitempty"`
	ChainID        string     `json:"chain_id,omitempty"`
	Embedding      []int8     `json:"embedding,omitempty"`
	Synonyms       []string   `json:"synonyms,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Scope 依 store/chain 欄位推導作用範圍
func (m *Mapping) Scope() Scope {
	switch {
	case m.StoreID != "":
		return ScopeStore
	case m.ChainID != "":
		return ScopeChain
	default:
		return ScopeGlobal
	}
}

// Supersedes 判斷 m 是否應取代 other：範圍更具體優先，其次信心度更高
func (m *Mapping) Supersedes(other *Mapping) bool {
	if other == nil {
		return true
	}
	if m.Scope() != other.Scope() {
		return m.Scope() > other.Scope()
	}
	return m.Confidence > other.Confidence
}

// Contribution 待同步到遠端目錄的分類候選
type Contribution struct {
	ID         string    `json:"id"`
	Mapping    Mapping   `json:"mapping"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Mention 食譜中的一行食材原始輸入
type Mention struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	RecipeID string `json:"recipe_id"`
}

// Position 食材在店內平面圖上的正規化座標（0-100）
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
