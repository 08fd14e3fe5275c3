package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStringList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"标准 JSON 数组", `["vegetarian","gluten-free"]`, []string{"vegetarian", "gluten-free"}},
		{"空字符串", "", nil},
		{"尾逗号容错", `["vegetarian"],`, []string{"vegetarian"}},
		{"缺右括号退回正则抽取", `["vegetarian","vegan"`, []string{"vegetarian", "vegan"}},
		{"完全损坏且无引号", `not json at all`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStringList(tt.raw))
		})
	}
}

func TestFoodItemIsSignature(t *testing.T) {
	assert.True(t, (&FoodItem{Name: "Niloufer Special Tea"}).IsSignature())
	assert.True(t, (&FoodItem{Name: "Khara Bun"}).IsSignature())
	// 名称必须精确匹配
	assert.False(t, (&FoodItem{Name: "niloufer special tea"}).IsSignature())
	assert.False(t, (&FoodItem{Name: "Plain Dosa"}).IsSignature())
}

func TestMacronutrientText(t *testing.T) {
	item := &FoodItem{MacrosRaw: `{"protein":"12g","fat":"6g"}`}
	// 键排序后首字母大写
	assert.Equal(t, "Fat: 6g, Protein: 12g", item.MacronutrientText())

	assert.Equal(t, "N/A", (&FoodItem{}).MacronutrientText())
	assert.Equal(t, "N/A", (&FoodItem{MacrosRaw: "broken{"}).MacronutrientText())
}

func TestSearchableText(t *testing.T) {
	item := &FoodItem{
		Name:        "Sprout Salad",
		Description: "Protein-rich salad",
		Category:    "Healthy",
		DietaryRaw:  `["vegan","high-protein"]`,
	}
	text := item.SearchableText()
	assert.Contains(t, text, "sprout salad")
	assert.Contains(t, text, "healthy")
	assert.Contains(t, text, "high-protein")
	// 全部小写
	assert.NotContains(t, text, "Sprout")
}

func TestEsFoodDocumentFlags(t *testing.T) {
	item := FoodItem{
		ID:         "salad",
		Name:       "Sprout Salad",
		DietaryRaw: `["vegan","high-protein","low-calorie"]`,
	}
	doc := NewEsFoodDocument(item, []float32{0.1}, "test-model")
	assert.True(t, doc.IsVegan)
	assert.True(t, doc.IsHighProtein)
	assert.True(t, doc.IsLowCalorie)
	assert.False(t, doc.IsVegetarian)
	assert.False(t, doc.IsGlutenFree)

	back := doc.ToFoodItem()
	assert.Equal(t, "salad", back.ID)
	assert.ElementsMatch(t, []string{"vegan", "high-protein", "low-calorie"}, back.DietaryTags())
}
