// Package vector 將浮點 embedding 壓縮為 int8 並計算相似度
package vector

import (
	"math"
	"sort"
)

// DefaultScale int8 量化的預設倍率
const DefaultScale = 127

// Quantize 將 embedding 每個分量限制在 [-1,1]、乘上 scale 後四捨五入為 int8
func Quantize(embedding []float32, scale int) []int8 {
	if scale <= 0 || scale > math.MaxInt8 {
		scale = DefaultScale
	}
	out := make([]int8, len(embedding))
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) {
			f = 0
		}
		f = math.Max(-1, math.Min(1, f))
		out[i] = int8(math.Round(f * float64(scale)))
	}
	return out
}

// Dequantize 還原為近似的浮點向量
func Dequantize(q []int8, scale int) []float32 {
	if scale <= 0 || scale > math.MaxInt8 {
		scale = DefaultScale
	}
	out := make([]float32, len(q))
	for i, v := range q {
		out[i] = float32(v) / float32(scale)
	}
	return out
}

// CosineSimilarity 以 int8 原始內積與長度計算餘弦相似度
//
// 長度不同或任一向量長度為零時回傳 0，不回傳錯誤。
func CosineSimilarity(a, b []int8) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aMag, bMag int64
	for i := range a {
		x, y := int64(a[i]), int64(b[i])
		dot += x * y
		aMag += x * x
		bMag += y * y
	}
	if aMag == 0 || bMag == 0 {
		return 0
	}
	return float64(dot) / (math.Sqrt(float64(aMag)) * math.Sqrt(float64(bMag)))
}

// Candidate 待排序的候選向量
type Candidate struct {
	Key    string
	Vector []int8
}

// Match 排序後的相似度結果
type Match struct {
	Key        string
	Index      int
	Similarity float64
}

// TopK 依相似度由高到低回傳前 k 筆，相同分數以 Key 升冪排列
func TopK(query []int8, candidates []Candidate, k int) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		if len(c.Vector) != len(query) {
			continue
		}
		matches = append(matches, Match{
			Key:        c.Key,
			Index:      i,
			Similarity: CosineSimilarity(query, c.Vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Key < matches[j].Key
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
