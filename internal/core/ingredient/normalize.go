// Package ingredient 處理食材名稱正規化、數量解析與跨食譜的數量合併
package ingredient

import (
	"strings"
	"unicode"
)

// quoteFolder 將排版引號統一成 ASCII 撇號
var quoteFolder = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"‚", "'",
	"‛", "'",
	"′", "'",
	"´", "'",
	"`", "'",
	"“", "'",
	"”", "'",
	"„", "'",
	"\"", "'",
)

// Normalize 將原始食材名稱轉為查詢用的正規化鍵
//
// 步驟：小寫 → 去頭尾空白 → 折疊引號 → 僅保留字母、數字、空白、"." 與 "-" → 合併空白。
// 對任意輸入皆有定義，且 Normalize(Normalize(x)) == Normalize(x)。
func Normalize(name string) string {
	s := strings.ToLower(name)
	s = strings.TrimSpace(s)
	s = quoteFolder.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
