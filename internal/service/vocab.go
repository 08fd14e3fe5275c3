// Package service 包含了应用的业务逻辑层。
package service

import "strings"

// 意图识别使用固定词表：刻意保持可枚举、可测试的简单启发式，
// 不引入正则或模型分类器。上下文消解的主责在下游 LLM 的 prompt，
// 这里的分类只用来决定是否复用上一轮候选。

// houseName 是餐厅名的小写形式，用于加分判定。
const houseName = "niloufer"

// signaturePromoPrefix 在招牌类查询前注入，把向量拉向招牌子空间。
const signaturePromoPrefix = "Niloufer special signature items "

// greetingTokens 是裸问候词集合，整句归一化后精确匹配。
var greetingTokens = map[string]struct{}{
	"hi":    {},
	"hello": {},
	"hey":   {},
}

// signatureTriggerWords 触发招牌/热门意图。
var signatureTriggerWords = []string{
	"special", "popular", "signature", "famous", "must try", "must-try",
}

// contextualPronouns 指代此前推荐内容的代词。
var contextualPronouns = []string{
	"these", "those", "them", "it", "that", "this", "which",
}

// propertyNouns 询问菜品属性的名词，出现即视为跟进。
var propertyNouns = []string{
	"calorie", "nutrient", "price", "cost", "how much",
}

// dietIntentVocab 把查询里的饮食意图词映射到菜品可检索文本中的词汇。
var dietIntentVocab = map[string][]string{
	"healthy":    {"low-calorie", "high-protein", "low-fat", "vegetarian", "vegan"},
	"junk":       {"fried", "burger", "pizza", "fries", "cheese"},
	"spicy":      {"spicy", "hot", "chili", "pepper"},
	"sweet":      {"sweet", "dessert", "chocolate", "cake"},
	"protein":    {"high-protein", "chicken", "egg", "meat"},
	"vegetarian": {"vegetarian", "veg"},
	"vegan":      {"vegan"},
}

// 极端卡路里阈值：低于 healthyCalorieLimit 视为清淡，高于 junkCalorieFloor 视为放纵。
const (
	healthyCalorieLimit = 300
	junkCalorieFloor    = 400
)

// mentionsHouseSpecial 判断用户原话是否提到招牌词或店名，
// 只有这类查询才触发检索结果的招牌加分重排。
func mentionsHouseSpecial(rawQuery string) bool {
	q := strings.ToLower(rawQuery)
	return strings.Contains(q, "special") || strings.Contains(q, houseName)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
