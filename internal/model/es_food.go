package model

import "encoding/json"

// EsFoodDocument 定义了菜品向量在 Elasticsearch 中的文档结构。
// 布尔膳食标志在导入时解析一次，检索阶段直接按 term 过滤。
type EsFoodDocument struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	SubCategory   string    `json:"sub_category"`
	Calories      int       `json:"calories"`
	Price         float64   `json:"price"`
	Dietary       []string  `json:"dietary"`
	Ingredients   []string  `json:"ingredients"`
	Protein       string    `json:"protein"`
	Carbohydrates string    `json:"carbohydrates"`
	Fat           string    `json:"fat"`
	Fiber         string    `json:"fiber"`
	IsVegetarian  bool      `json:"is_vegetarian"`
	IsVegan       bool      `json:"is_vegan"`
	IsGlutenFree  bool      `json:"is_gluten_free"`
	IsHighProtein bool      `json:"is_high_protein"`
	IsLowCalorie  bool      `json:"is_low_calorie"`
	IsPopular     bool      `json:"is_popular"`
	ModelVersion  string    `json:"model_version"`
	Vector        []float32 `json:"vector"`
}

// NewEsFoodDocument 把目录记录与查询向量组装成 ES 文档。
func NewEsFoodDocument(item FoodItem, vector []float32, modelVersion string) EsFoodDocument {
	dietary := item.DietaryTags()
	macros := item.Macronutrients()
	doc := EsFoodDocument{
		ID:            item.ID,
		Name:          item.Name,
		Description:   item.Description,
		Category:      item.Category,
		SubCategory:   item.SubCategory,
		Calories:      item.Calories,
		Price:         item.Price,
		Dietary:       dietary,
		Ingredients:   item.Ingredients(),
		Protein:       macros["protein"],
		Carbohydrates: macros["carbohydrates"],
		Fat:           macros["fat"],
		Fiber:         macros["fiber"],
		IsPopular:     item.IsPopular,
		ModelVersion:  modelVersion,
		Vector:        vector,
	}
	for _, tag := range dietary {
		switch tag {
		case "vegetarian":
			doc.IsVegetarian = true
		case "vegan":
			doc.IsVegan = true
		case "gluten-free":
			doc.IsGlutenFree = true
		case "high-protein":
			doc.IsHighProtein = true
		case "low-calorie":
			doc.IsLowCalorie = true
		}
	}
	return doc
}

// ToFoodItem 把 ES 文档还原成目录记录（不含向量）。
func (d *EsFoodDocument) ToFoodItem() FoodItem {
	dietaryRaw, _ := json.Marshal(d.Dietary)
	ingredientsRaw, _ := json.Marshal(d.Ingredients)
	macrosRaw, _ := json.Marshal(map[string]string{
		"protein":       d.Protein,
		"carbohydrates": d.Carbohydrates,
		"fat":           d.Fat,
		"fiber":         d.Fiber,
	})
	return FoodItem{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Category:       d.Category,
		SubCategory:    d.SubCategory,
		Calories:       d.Calories,
		Price:          d.Price,
		DietaryRaw:     string(dietaryRaw),
		IngredientsRaw: string(ingredientsRaw),
		MacrosRaw:      string(macrosRaw),
		IsPopular:      d.IsPopular,
	}
}
