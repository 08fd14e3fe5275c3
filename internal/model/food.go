// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// SignatureItemNames 是招牌菜品的固定名单（按名称精确匹配）。
// 顺序即补位时的优先顺序。
var SignatureItemNames = []string{
	"Niloufer Special Tea",
	"Niloufer Special Coffee",
	"Maska Bun",
	"Khara Bun",
}

// FoodItem 是菜品目录中的一条不可变记录。
// 由离线导入流程写入 MySQL，检索阶段只读；结构化字段（dietary、
// ingredients、macronutrients）以 JSON 文本存储，解析容错。
type FoodItem struct {
	ID             string  `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Name           string  `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description    string  `gorm:"column:description;type:text" json:"description"`
	Category       string  `gorm:"column:category;type:varchar(128);index" json:"category"`
	SubCategory    string  `gorm:"column:sub_category;type:varchar(128)" json:"subCategory"`
	Calories       int     `gorm:"column:calories" json:"calories"` // 0 表示未知
	Price          float64 `gorm:"column:price" json:"price"`
	DietaryRaw     string  `gorm:"column:dietary;type:text" json:"-"`
	IngredientsRaw string  `gorm:"column:ingredients;type:text" json:"-"`
	MacrosRaw      string  `gorm:"column:macronutrients;type:text" json:"-"`
	ImageObject    string  `gorm:"column:image_object;type:varchar(255)" json:"-"`
	IsPopular      bool    `gorm:"column:is_popular" json:"isPopular"`
}

func (FoodItem) TableName() string {
	return "food_items"
}

// IsSignature 判断菜品是否属于招牌名单。
func (f *FoodItem) IsSignature() bool {
	for _, name := range SignatureItemNames {
		if f.Name == name {
			return true
		}
	}
	return false
}

// DietaryTags 解析膳食标签列表，字段损坏时按空处理。
func (f *FoodItem) DietaryTags() []string {
	return ParseStringList(f.DietaryRaw)
}

// Ingredients 解析配料列表，字段损坏时按空处理。
func (f *FoodItem) Ingredients() []string {
	return ParseStringList(f.IngredientsRaw)
}

// Macronutrients 解析营养成分映射（营养名 -> 展示字符串），字段损坏时返回空映射。
func (f *FoodItem) Macronutrients() map[string]string {
	if f.MacrosRaw == "" {
		return map[string]string{}
	}
	cleaned := strings.TrimSuffix(strings.TrimSpace(f.MacrosRaw), ",")
	var macros map[string]string
	if err := json.Unmarshal([]byte(cleaned), &macros); err != nil {
		return map[string]string{}
	}
	return macros
}

// MacronutrientText 把营养成分格式化为 "Protein: 12g, Fat: 6g" 形式，空时返回 "N/A"。
func (f *FoodItem) MacronutrientText() string {
	macros := f.Macronutrients()
	if len(macros) == 0 {
		return "N/A"
	}
	keys := make([]string, 0, len(macros))
	for k := range macros {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, capitalize(k)+": "+macros[k])
	}
	return strings.Join(parts, ", ")
}

// SearchableText 拼接用于关键词匹配的小写文本（名称/描述/分类/膳食标签）。
func (f *FoodItem) SearchableText() string {
	parts := []string{f.Name, f.Description, f.Category, f.SubCategory}
	parts = append(parts, f.DietaryTags()...)
	return strings.ToLower(strings.Join(parts, " "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var quotedItemPattern = regexp.MustCompile(`"([^"]+)"`)

// ParseStringList 解析 JSON 字符串数组字段。
// 目录源数据中这类字段偶有缺引号或多余逗号，解析失败时退回
// 正则抽取引号内容，保证单条脏数据不会中断整轮检索。
func ParseStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	cleaned := strings.TrimSuffix(strings.TrimSpace(raw), ",")
	var values []string
	if err := json.Unmarshal([]byte(cleaned), &values); err == nil {
		return values
	}
	matches := quotedItemPattern.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return nil
	}
	values = make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m[1])
	}
	return values
}

// CandidateMatch 是检索返回的候选菜品与其相关性得分。
// 分数只作为同一后端内的降序排序键，不同后端之间不可比。
type CandidateMatch struct {
	Item  FoodItem `json:"item"`
	Score float64  `json:"score"`
}

// FoodFilter 是检索的结构化过滤条件（各条件为合取关系）。
type FoodFilter struct {
	Category    string `json:"category,omitempty"`
	MaxCalories *int   `json:"max_calories,omitempty"`
	MinCalories *int   `json:"min_calories,omitempty"`
	Dietary     string `json:"dietary,omitempty"` // vegetarian / vegan / gluten-free / high-protein
	LowCalorie  bool   `json:"low_calorie,omitempty"`
	Popular     bool   `json:"popular,omitempty"`
}
