package ingredient

import "strings"

// Family 單位家族
type Family string

const (
	FamilyVolume  Family = "volume"
	FamilyWeight  Family = "weight"
	FamilyCount   Family = "count"
	FamilyUnknown Family = "unknown"
)

// 各家族的基準單位
const (
	BaseCup   = "cup"
	BasePound = "pound"
	BasePiece = "piece"
)

type unitDef struct {
	base   string
	family Family
	factor float64
}

// unitAliases 已知單位拼寫（含複數與縮寫）→ 基準單位與換算係數
var unitAliases = map[string]unitDef{
	// 容量 → cup
	"cup":          {BaseCup, FamilyVolume, 1},
	"cups":         {BaseCup, FamilyVolume, 1},
	"c":            {BaseCup, FamilyVolume, 1},
	"tablespoon":   {BaseCup, FamilyVolume, 1.0 / 16},
	"tablespoons":  {BaseCup, FamilyVolume, 1.0 / 16},
	"tbsp":         {BaseCup, FamilyVolume, 1.0 / 16},
	"tbsps":        {BaseCup, FamilyVolume, 1.0 / 16},
	"tbs":          {BaseCup, FamilyVolume, 1.0 / 16},
	"tbl":          {BaseCup, FamilyVolume, 1.0 / 16},
	"teaspoon":     {BaseCup, FamilyVolume, 1.0 / 48},
	"teaspoons":    {BaseCup, FamilyVolume, 1.0 / 48},
	"tsp":          {BaseCup, FamilyVolume, 1.0 / 48},
	"tsps":         {BaseCup, FamilyVolume, 1.0 / 48},
	"quart":        {BaseCup, FamilyVolume, 4},
	"quarts":       {BaseCup, FamilyVolume, 4},
	"qt":           {BaseCup, FamilyVolume, 4},
	"qts":          {BaseCup, FamilyVolume, 4},
	"pint":         {BaseCup, FamilyVolume, 2},
	"pints":        {BaseCup, FamilyVolume, 2},
	"pt":           {BaseCup, FamilyVolume, 2},
	"gallon":       {BaseCup, FamilyVolume, 16},
	"gallons":      {BaseCup, FamilyVolume, 16},
	"gal":          {BaseCup, FamilyVolume, 16},
	"fl oz":        {BaseCup, FamilyVolume, 1.0 / 8},
	"fluid ounce":  {BaseCup, FamilyVolume, 1.0 / 8},
	"fluid ounces": {BaseCup, FamilyVolume, 1.0 / 8},
	"ml":           {BaseCup, FamilyVolume, 1 / 236.588},
	"milliliter":   {BaseCup, FamilyVolume, 1 / 236.588},
	"milliliters":  {BaseCup, FamilyVolume, 1 / 236.588},
	"l":            {BaseCup, FamilyVolume, 1000 / 236.588},
	"liter":        {BaseCup, FamilyVolume, 1000 / 236.588},
	"liters":       {BaseCup, FamilyVolume, 1000 / 236.588},

	// 重量 → pound
	"pound":     {BasePound, FamilyWeight, 1},
	"pounds":    {BasePound, FamilyWeight, 1},
	"lb":        {BasePound, FamilyWeight, 1},
	"lbs":       {BasePound, FamilyWeight, 1},
	"ounce":     {BasePound, FamilyWeight, 1.0 / 16},
	"ounces":    {BasePound, FamilyWeight, 1.0 / 16},
	"oz":        {BasePound, FamilyWeight, 1.0 / 16},
	"gram":      {BasePound, FamilyWeight, 1 / 453.592},
	"grams":     {BasePound, FamilyWeight, 1 / 453.592},
	"g":         {BasePound, FamilyWeight, 1 / 453.592},
	"kilogram":  {BasePound, FamilyWeight, 2.20462},
	"kilograms": {BasePound, FamilyWeight, 2.20462},
	"kg":        {BasePound, FamilyWeight, 2.20462},

	// 個數 → piece（空字串代表未寫單位的純數字）
	"":       {BasePiece, FamilyCount, 1},
	"piece":  {BasePiece, FamilyCount, 1},
	"pieces": {BasePiece, FamilyCount, 1},
	"pc":     {BasePiece, FamilyCount, 1},
	"pcs":    {BasePiece, FamilyCount, 1},
	"whole":  {BasePiece, FamilyCount, 1},
	"each":   {BasePiece, FamilyCount, 1},
	"ea":     {BasePiece, FamilyCount, 1},
}

// ToBase 將數量換算為基準單位；未知單位以自身作為基準、係數為 1
func ToBase(amount float64, unit string) (float64, string, Family) {
	key := strings.ToLower(strings.TrimSpace(unit))
	if def, ok := unitAliases[key]; ok {
		return amount * def.factor, def.base, def.family
	}
	return amount, key, FamilyUnknown
}

// FamilyOf 回傳基準單位所屬家族
func FamilyOf(base string) Family {
	switch base {
	case BaseCup:
		return FamilyVolume
	case BasePound:
		return FamilyWeight
	case BasePiece:
		return FamilyCount
	default:
		return FamilyUnknown
	}
}

// Humanize 將基準單位總量換算成適合閱讀的單位
//
// 容量：≥4 杯用 quart，≥1 用 cup，≥1/16 用 tbsp，否則 tsp；重量：≥1 磅用 lb，否則 oz；個數維持 piece。
func Humanize(total float64, base string) (float64, string) {
	switch FamilyOf(base) {
	case FamilyVolume:
		switch {
		case total >= 4:
			v := total / 4
			return v, plural(v, "quart", "quarts")
		case total >= 1:
			return total, plural(total, "cup", "cups")
		case total >= 1.0/16:
			return total * 16, "tbsp"
		default:
			return total * 48, "tsp"
		}
	case FamilyWeight:
		if total >= 1 {
			return total, plural(total, "lb", "lbs")
		}
		return total * 16, "oz"
	case FamilyCount:
		return total, plural(total, "piece", "pieces")
	default:
		return total, base
	}
}

func plural(v float64, one, many string) string {
	if v == 1 {
		return one
	}
	return many
}
