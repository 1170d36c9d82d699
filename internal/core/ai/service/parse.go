package service

import (
	"fmt"
	"strings"

	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/pkg/common"
)

// Classification AI 分類結果
type Classification struct {
	Category   common.Category `json:"category"`
	Aisle      string          `json:"aisle"`
	Confidence float64         `json:"confidence"`
}

// rawClassification 欄位使用指標以分辨缺漏與零值
type rawClassification struct {
	Name       *string  `json:"name,omitempty"`
	Category   *string  `json:"category"`
	Aisle      *string  `json:"aisle"`
	Confidence *float64 `json:"confidence"`
}

func (r rawClassification) validate() (Classification, error) {
	if r.Category == nil || r.Aisle == nil || r.Confidence == nil {
		return Classification{}, fmt.Errorf("%w: missing category, aisle or confidence", common.ErrParseFailure)
	}
	category, ok := common.ParseCategory(*r.Category)
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown category %q", common.ErrParseFailure, *r.Category)
	}
	aisle := strings.TrimSpace(*r.Aisle)
	if aisle == "" {
		return Classification{}, fmt.Errorf("%w: empty aisle", common.ErrParseFailure)
	}
	if *r.Confidence < 0 || *r.Confidence > 1 {
		return Classification{}, fmt.Errorf("%w: confidence %v out of range", common.ErrParseFailure, *r.Confidence)
	}
	return Classification{Category: category, Aisle: aisle, Confidence: *r.Confidence}, nil
}

// ParseClassification 解析單一食材的 AI 回應
//
// 允許 markdown code fence 包裹；缺欄位、分類不在列舉中或信心度超出範圍時回傳 ErrParseFailure。
func ParseClassification(content string) (Classification, error) {
	body, err := extractObject(content)
	if err != nil {
		return Classification{}, err
	}

	var raw rawClassification
	if err := common.ParseJSON(body, &raw); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", common.ErrParseFailure, err)
	}
	return raw.validate()
}

// ParseBatch 解析整份清單的 AI 回應，格式為 {"items":[...]}
//
// 個別無效的項目會被略過；整體結構無法解析時回傳 ErrParseFailure。回傳值以正規化名稱為鍵。
func ParseBatch(content string) (map[string]Classification, error) {
	body, err := extractObject(content)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Items []rawClassification `json:"items"`
	}
	if err := common.ParseJSON(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParseFailure, err)
	}

	result := make(map[string]Classification, len(raw.Items))
	for _, item := range raw.Items {
		if item.Name == nil {
			continue
		}
		key := ingredient.Normalize(*item.Name)
		if key == "" {
			continue
		}
		c, err := item.validate()
		if err != nil {
			common.LogDebug("略過無效的批次分類項目")
			continue
		}
		result[key] = c
	}
	return result, nil
}

func extractObject(content string) (string, error) {
	stripped := common.StripCodeFence(content)
	body := common.ExtractJSONObject(stripped)
	if body == "" {
		return "", fmt.Errorf("%w: no JSON object in response", common.ErrParseFailure)
	}
	return body, nil
}
