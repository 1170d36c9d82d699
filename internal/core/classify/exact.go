package classify

import (
	"context"

	"ingredient-engine/internal/pkg/common"
)

type entry struct {
	category   common.Category
	aisle      string
	confidence float64
}

// 常見食材，直接命中不需任何查詢
var exactTable = map[string]entry{
	// Produce
	"apples":       {common.CategoryProduce, "Produce", 0.95},
	"avocado":      {common.CategoryProduce, "Produce", 0.95},
	"bananas":      {common.CategoryProduce, "Produce", 0.95},
	"basil":        {common.CategoryProduce, "Fresh Herbs", 0.9},
	"bell pepper":  {common.CategoryProduce, "Produce", 0.95},
	"broccoli":     {common.CategoryProduce, "Produce", 0.95},
	"carrots":      {common.CategoryProduce, "Produce", 0.95},
	"celery":       {common.CategoryProduce, "Produce", 0.95},
	"cilantro":     {common.CategoryProduce, "Fresh Herbs", 0.9},
	"cucumber":     {common.CategoryProduce, "Produce", 0.95},
	"garlic":       {common.CategoryProduce, "Produce", 0.95},
	"ginger":       {common.CategoryProduce, "Produce", 0.9},
	"lemon":        {common.CategoryProduce, "Produce", 0.95},
	"lettuce":      {common.CategoryProduce, "Produce", 0.95},
	"lime":         {common.CategoryProduce, "Produce", 0.95},
	"mushrooms":    {common.CategoryProduce, "Produce", 0.9},
	"onion":        {common.CategoryProduce, "Produce", 0.95},
	"onions":       {common.CategoryProduce, "Produce", 0.95},
	"parsley":      {common.CategoryProduce, "Fresh Herbs", 0.9},
	"potatoes":     {common.CategoryProduce, "Produce", 0.95},
	"spinach":      {common.CategoryProduce, "Produce", 0.95},
	"tomato":       {common.CategoryProduce, "Produce", 0.95},
	"tomatoes":     {common.CategoryProduce, "Produce", 0.95},
	"zucchini":     {common.CategoryProduce, "Produce", 0.95},
	"green onions": {common.CategoryProduce, "Produce", 0.9},

	// Dairy
	"butter":       {common.CategoryDairy, "Dairy", 0.95},
	"cheddar":      {common.CategoryDairy, "Dairy", 0.9},
	"cream cheese": {common.CategoryDairy, "Dairy", 0.95},
	"eggs":         {common.CategoryDairy, "Dairy", 0.95},
	"heavy cream":  {common.CategoryDairy, "Dairy", 0.95},
	"milk":         {common.CategoryDairy, "Dairy", 0.95},
	"parmesan":     {common.CategoryDairy, "Dairy", 0.9},
	"sour cream":   {common.CategoryDairy, "Dairy", 0.95},
	"yogurt":       {common.CategoryDairy, "Dairy", 0.95},

	// Meat
	"bacon":          {common.CategoryMeat, "Meat", 0.95},
	"beef":           {common.CategoryMeat, "Meat", 0.95},
	"chicken":        {common.CategoryMeat, "Meat", 0.95},
	"chicken breast": {common.CategoryMeat, "Meat", 0.95},
	"chicken thighs": {common.CategoryMeat, "Meat", 0.95},
	"ground beef":    {common.CategoryMeat, "Meat", 0.95},
	"ground turkey":  {common.CategoryMeat, "Meat", 0.95},
	"pork":           {common.CategoryMeat, "Meat", 0.95},
	"sausage":        {common.CategoryMeat, "Meat", 0.9},

	// Seafood
	"cod":    {common.CategorySeafood, "Seafood", 0.95},
	"salmon": {common.CategorySeafood, "Seafood", 0.95},
	"shrimp": {common.CategorySeafood, "Seafood", 0.95},
	"tuna":   {common.CategorySeafood, "Seafood", 0.85},

	// Bakery
	"bread":     {common.CategoryBakery, "Bakery", 0.95},
	"buns":      {common.CategoryBakery, "Bakery", 0.9},
	"tortillas": {common.CategoryBakery, "Bakery", 0.85},
	"bagels":    {common.CategoryBakery, "Bakery", 0.95},

	// Frozen
	"frozen peas": {common.CategoryFrozen, "Frozen", 0.95},
	"ice cream":   {common.CategoryFrozen, "Frozen", 0.95},

	// Pantry
	"baking powder":   {common.CategoryPantry, "Baking", 0.95},
	"baking soda":     {common.CategoryPantry, "Baking", 0.95},
	"black pepper":    {common.CategoryPantry, "Spices", 0.95},
	"brown sugar":     {common.CategoryPantry, "Baking", 0.95},
	"chicken broth":   {common.CategoryPantry, "Canned Goods", 0.9},
	"flour":           {common.CategoryPantry, "Baking", 0.95},
	"honey":           {common.CategoryPantry, "Pantry", 0.9},
	"olive oil":       {common.CategoryPantry, "Oils & Vinegars", 0.95},
	"pasta":           {common.CategoryPantry, "Pasta & Grains", 0.95},
	"rice":            {common.CategoryPantry, "Pasta & Grains", 0.95},
	"salt":            {common.CategoryPantry, "Spices", 0.95},
	"soy sauce":       {common.CategoryPantry, "International", 0.9},
	"sugar":           {common.CategoryPantry, "Baking", 0.95},
	"vanilla extract": {common.CategoryPantry, "Baking", 0.95},
	"vegetable oil":   {common.CategoryPantry, "Oils & Vinegars", 0.95},

	// Beverages
	"coffee": {common.CategoryBeverages, "Beverages", 0.9},
	"tea":    {common.CategoryBeverages, "Beverages", 0.9},
	"water":  {common.CategoryBeverages, "Beverages", 0.85},
	"wine":   {common.CategoryBeverages, "Beverages", 0.85},

	// Snacks
	"chips":    {common.CategorySnacks, "Snacks", 0.9},
	"crackers": {common.CategorySnacks, "Snacks", 0.9},

	// Household
	"aluminum foil": {common.CategoryHousehold, "Household", 0.95},
	"paper towels":  {common.CategoryHousehold, "Household", 0.95},
}

// ExactTier 內建的常見食材表
type ExactTier struct{}

// NewExactTier 建立內建表層級
func NewExactTier() *ExactTier { return &ExactTier{} }

func (*ExactTier) Name() string { return "exact" }

func (*ExactTier) Remote() bool { return false }

func (*ExactTier) Resolve(_ context.Context, q Query) (*Result, error) {
	e, ok := exactTable[q.Key]
	if !ok {
		return nil, nil
	}
	return &Result{
		Mapping: common.Mapping{
			NormalizedName: q.Key,
			DisplayName:    q.DisplayName,
			Department:     e.category,
			Zone:           e.aisle,
			Confidence:     e.confidence,
			Source:         common.ProvenanceManual,
			StoreID:        q.StoreID,
			ChainID:        q.ChainID,
		},
		Source: SourceHardcoded,
	}, nil
}

// Lookup 直接查表，供不走分類鏈的呼叫端使用
func Lookup(key string) (common.Category, string, bool) {
	e, ok := exactTable[key]
	return e.category, e.aisle, ok
}
