// Package layout 將分類對應到賣場平面圖上的位置
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"ingredient-engine/internal/pkg/common"

	"gopkg.in/yaml.v3"
)

// DefaultStore 未指定門市或門市沒有平面圖時使用
const DefaultStore = "default"

//go:embed default.yaml
var defaultLayout []byte

// ErrNoDefault 平面圖缺少 default 門市
var ErrNoDefault = errors.New("layout has no default store")

type layoutFile struct {
	Stores map[string]map[string]common.Position `yaml:"stores"`
}

// Layouts 各門市的分類位置，建立後唯讀
type Layouts struct {
	stores map[string]map[common.Category]common.Position
}

// Default 內建平面圖
func Default() *Layouts {
	l, err := Parse(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("embedded layout: %v", err))
	}
	return l
}

// Load 讀取平面圖檔案；path 為空時使用內建平面圖，檔案中沒有的門市或分類仍會回退到內建值
func Load(path string) (*Layouts, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	custom, err := parse(data)
	if err != nil {
		return nil, err
	}
	for store, positions := range custom.stores {
		if base.stores[store] == nil {
			base.stores[store] = make(map[common.Category]common.Position)
		}
		for cat, pos := range positions {
			base.stores[store][cat] = pos
		}
	}
	return base, nil
}

// Parse 解析 YAML 平面圖，必須包含 default 門市
func Parse(data []byte) (*Layouts, error) {
	l, err := parse(data)
	if err != nil {
		return nil, err
	}
	if _, ok := l.stores[DefaultStore]; !ok {
		return nil, ErrNoDefault
	}
	return l, nil
}

func parse(data []byte) (*Layouts, error) {
	var file layoutFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	l := &Layouts{stores: make(map[string]map[common.Category]common.Position, len(file.Stores))}
	for store, positions := range file.Stores {
		m := make(map[common.Category]common.Position, len(positions))
		for name, pos := range positions {
			cat, ok := common.ParseCategory(name)
			if !ok {
				return nil, fmt.Errorf("parse layout: store %q has unknown category %q", store, name)
			}
			m[cat] = clamp(pos)
		}
		l.stores[strings.TrimSpace(store)] = m
	}
	return l, nil
}

// Position 分類在門市平面圖上的位置；依序回退到 default 門市與 other 分類
func (l *Layouts) Position(storeID string, category common.Category) common.Position {
	if positions, ok := l.stores[storeID]; ok {
		if pos, ok := positions[category]; ok {
			return pos
		}
	}
	defaults := l.stores[DefaultStore]
	if pos, ok := defaults[category]; ok {
		return pos
	}
	return defaults[common.CategoryOther]
}

// Stores 已定義平面圖的門市
func (l *Layouts) Stores() []string {
	stores := make([]string, 0, len(l.stores))
	for s := range l.stores {
		stores = append(stores, s)
	}
	return stores
}

func clamp(p common.Position) common.Position {
	return common.Position{X: clamp100(p.X), Y: clamp100(p.Y)}
}

func clamp100(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
