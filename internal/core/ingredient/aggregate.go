package ingredient

import (
	"math"
	"strconv"
	"strings"

	"ingredient-engine/internal/pkg/common"
)

// QuantityInput 單次提及的數量與單位文字
type QuantityInput struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// Text 組合成 "<quantity> <unit>" 供解析
func (q QuantityInput) Text() string {
	return strings.TrimSpace(strings.TrimSpace(q.Quantity) + " " + strings.TrimSpace(q.Unit))
}

// GroupTotal 單一基準單位的累計量
type GroupTotal struct {
	Base  string  `json:"base"`
	Total float64 `json:"total"`
}

// Combined 合併後的顯示數量
type Combined struct {
	Amount             string       `json:"amount"`
	Unit               string       `json:"unit"`
	UsageCount         int          `json:"usage_count"`
	OriginalQuantities []string     `json:"original_quantities"`
	Secondary          []GroupTotal `json:"secondary,omitempty"`
}

// AggregatedIngredient 同一正規化鍵的合併結果
type AggregatedIngredient struct {
	NormalizedKey      string   `json:"normalized_key"`
	DisplayName        string   `json:"display_name"`
	CombinedAmount     string   `json:"combined_amount"`
	CombinedUnit       string   `json:"combined_unit"`
	UsageCount         int      `json:"usage_count"`
	OriginalQuantities []string `json:"original_quantities"`
	RecipeIDs          []string `json:"recipe_ids,omitempty"`
}

type group struct {
	base  string
	total float64
}

// CombineQuantities 合併多次提及的數量
//
// 每個基準單位各自累計，取總量最大的一組作為顯示數量。其他組的量不加入顯示總量，
// 只保留在 OriginalQuantities 與 Secondary 中供稽核。
func CombineQuantities(inputs []QuantityInput) Combined {
	switch len(inputs) {
	case 0:
		return Combined{Amount: "1", Unit: BasePiece, UsageCount: 0, OriginalQuantities: []string{}}
	case 1:
		originals := []string{}
		if text := inputs[0].Text(); text != "" {
			originals = append(originals, text)
		}
		return Combined{
			Amount:             strings.TrimSpace(inputs[0].Quantity),
			Unit:               strings.TrimSpace(inputs[0].Unit),
			UsageCount:         1,
			OriginalQuantities: originals,
		}
	}

	originals := make([]string, 0, len(inputs))
	var groups []*group
	index := make(map[string]*group)

	for _, in := range inputs {
		text := in.Text()
		if text == "" {
			continue
		}
		originals = append(originals, text)

		parsed := ParseQuantity(text)
		if parsed == nil {
			continue
		}
		amount, base, _ := ToBase(parsed.Amount, parsed.Unit)
		g, ok := index[base]
		if !ok {
			g = &group{base: base}
			index[base] = g
			groups = append(groups, g)
		}
		g.total += amount
	}

	if len(groups) == 0 {
		return Combined{Amount: "1", Unit: BasePiece, UsageCount: len(inputs), OriginalQuantities: originals}
	}

	primary := groups[0]
	for _, g := range groups[1:] {
		if g.total > primary.total {
			primary = g
		}
	}

	var secondary []GroupTotal
	for _, g := range groups {
		if g != primary {
			secondary = append(secondary, GroupTotal{Base: g.base, Total: g.total})
		}
	}

	if primary.base == ToTasteUnit {
		return Combined{Amount: "", Unit: ToTasteUnit, UsageCount: len(inputs), OriginalQuantities: originals, Secondary: secondary}
	}

	amount, unit := Humanize(primary.total, primary.base)
	return Combined{
		Amount:             FormatAmount(amount),
		Unit:               unit,
		UsageCount:         len(inputs),
		OriginalQuantities: originals,
		Secondary:          secondary,
	}
}

type fractionEntry struct {
	value float64
	text  string
}

// commonFractions 常見烹飪分數（到 2¾ 為止）
var commonFractions = []fractionEntry{
	{0.25, "1/4"}, {0.33, "1/3"}, {0.5, "1/2"}, {0.67, "2/3"}, {0.75, "3/4"},
	{1.25, "1 1/4"}, {1.33, "1 1/3"}, {1.5, "1 1/2"}, {1.67, "1 2/3"}, {1.75, "1 3/4"},
	{2.25, "2 1/4"}, {2.33, "2 1/3"}, {2.5, "2 1/2"}, {2.67, "2 2/3"}, {2.75, "2 3/4"},
}

// FormatAmount 四捨五入到兩位小數後，優先輸出常見分數，其次整數，最後兩位小數
func FormatAmount(v float64) string {
	rounded := math.Round(v*100) / 100
	for _, f := range commonFractions {
		if math.Abs(rounded-f.value) < 1e-9 {
			return f.text
		}
	}
	if rounded == math.Trunc(rounded) {
		return strconv.FormatFloat(rounded, 'f', 0, 64)
	}
	return strconv.FormatFloat(rounded, 'f', 2, 64)
}

// Aggregate 依正規化鍵分組並合併數量，保留首次出現的順序
func Aggregate(mentions []common.Mention) []AggregatedIngredient {
	type bucket struct {
		key     string
		display string
		inputs  []QuantityInput
		recipes []string
	}

	var order []*bucket
	byKey := make(map[string]*bucket)
	for _, m := range mentions {
		key := Normalize(m.Name)
		if key == "" {
			continue
		}
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key, display: strings.TrimSpace(m.Name)}
			byKey[key] = b
			order = append(order, b)
		}
		b.inputs = append(b.inputs, QuantityInput{Quantity: m.Quantity, Unit: m.Unit})
		if m.RecipeID != "" {
			b.recipes = appendUnique(b.recipes, m.RecipeID)
		}
	}

	result := make([]AggregatedIngredient, 0, len(order))
	for _, b := range order {
		combined := CombineQuantities(b.inputs)
		result = append(result, AggregatedIngredient{
			NormalizedKey:      b.key,
			DisplayName:        b.display,
			CombinedAmount:     combined.Amount,
			CombinedUnit:       combined.Unit,
			UsageCount:         combined.UsageCount,
			OriginalQuantities: combined.OriginalQuantities,
			RecipeIDs:          b.recipes,
		})
	}
	return result
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
