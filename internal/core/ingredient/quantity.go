package ingredient

import (
	"regexp"
	"strconv"
	"strings"
)

// ToTasteUnit 非數值的調味用語統一使用的單位
const ToTasteUnit = "to taste"

// ParsedQuantity 解析後的數量
type ParsedQuantity struct {
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	Name         string  `json:"name,omitempty"`
	OriginalText string  `json:"original_text"`
}

// IsToTaste 是否為 "to taste" 類的非數值數量
func (p *ParsedQuantity) IsToTaste() bool {
	return p.Unit == ToTasteUnit
}

var toTastePhrases = []string{"to taste", "as needed", "pinch"}

// 開頭數值：帶分數（1 1/2）、分數（1/2）、小數（.5、1.25）或整數
var leadingNumber = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d*\.\d+|\d+)(?:\s+|$|([^\d\s./]))`)

// 範圍的上限（"1-2 cups"、"1 to 2 cups"），解析時取下限
var rangeUpper = regexp.MustCompile(`^(?:-|–|to\s)\s*(?:\d+\s+\d+/\d+|\d+/\d+|\d*\.\d+|\d+)`)

// ParseQuantity 從自由文字中解析數量與單位
//
// 範圍數量取下限；空白輸入回傳 nil；含 "to taste"、"as needed"、"pinch" 時回傳 {0, "to taste"}；
// 找不到開頭數值時，整段文字當作單位並以 1 為數量，確保流程不會因無法解析而中斷。
func ParseQuantity(text string) *ParsedQuantity {
	original := text
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range toTastePhrases {
		if strings.Contains(lower, phrase) {
			return &ParsedQuantity{Amount: 0, Unit: ToTasteUnit, OriginalText: original}
		}
	}

	loc := leadingNumber.FindStringSubmatchIndex(lower)
	if loc == nil {
		return qualitative(lower, original)
	}

	amount, ok := parseNumber(lower[loc[2]:loc[3]])
	if !ok {
		return qualitative(lower, original)
	}

	// 數字與單位黏在一起時（例如 "200g"），第二組捕捉的是單位首字元
	restStart := loc[1]
	if loc[4] >= 0 {
		restStart = loc[4]
	}
	rest := strings.TrimSpace(lower[restStart:])
	if m := rangeUpper.FindString(rest); m != "" {
		rest = strings.TrimSpace(rest[len(m):])
	}

	unit, name := splitUnit(rest)
	return &ParsedQuantity{
		Amount:       amount,
		Unit:         unit,
		Name:         name,
		OriginalText: original,
	}
}

func qualitative(lower, original string) *ParsedQuantity {
	return &ParsedQuantity{
		Amount:       1,
		Unit:         strings.Join(strings.Fields(lower), " "),
		OriginalText: original,
	}
}

// splitUnit 取第一個詞作為單位，其餘為名稱；"of" 連接詞會被略過
func splitUnit(rest string) (string, string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", ""
	}
	unit := strings.TrimSuffix(fields[0], ".")
	if len(fields) > 1 && fields[0] == "fl" && strings.TrimSuffix(fields[1], ".") == "oz" {
		unit = "fl oz"
		fields = fields[1:]
	}
	remainder := fields[1:]
	if len(remainder) > 0 && remainder[0] == "of" {
		remainder = remainder[1:]
	}
	return unit, strings.Join(remainder, " ")
}

// parseNumber 解析整數、小數、分數與帶分數
func parseNumber(token string) (float64, bool) {
	parts := strings.Fields(token)
	if len(parts) == 2 {
		whole, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, false
		}
		frac, ok := parseFraction(parts[1])
		if !ok {
			return 0, false
		}
		return whole + frac, true
	}
	if strings.Contains(token, "/") {
		return parseFraction(token)
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFraction(token string) (float64, bool) {
	num, den, found := strings.Cut(token, "/")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return n / d, true
}
