package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/embedding"
	"niloufer-chat-go/pkg/log"
)

// VectorSearcher 抽象了向量检索后端。为 nil 时检索自动退化为关键词匹配。
type VectorSearcher interface {
	SearchFoods(ctx context.Context, queryVector []float32, topK int, filter *model.FoodFilter) ([]model.CandidateMatch, error)
	GetFoodByID(ctx context.Context, id string) (*model.FoodItem, error)
}

// FoodService 定义了菜品检索与目录查询操作。
type FoodService interface {
	// Retrieve 返回按相关性降序的候选菜品，长度不超过 topK。
	// rawQuery 是用户原话（用于意图判断），searchQuery 是改写后的检索查询。
	// 任何后端故障都会退化为关键词匹配，永不因此返回错误。
	Retrieve(ctx context.Context, rawQuery, searchQuery string, topK int, filter *model.FoodFilter) ([]model.CandidateMatch, error)
	// BuildFoodContext 把候选列表格式化为注入 prompt 的菜单文本。
	BuildFoodContext(candidates []model.CandidateMatch) string
	// GetFoodByID 按 ID 查询单个菜品。
	GetFoodByID(ctx context.Context, id string) (*model.FoodItem, error)
	// ListFoods 分页返回目录，category 为空时不过滤。
	ListFoods(category string, limit, offset int) []model.FoodItem
	// Categories 返回目录中出现过的分类（升序）。
	Categories() []string
	// Statistics 返回目录的统计摘要。
	Statistics() map[string]interface{}
	// Catalog 返回完整目录快照。
	Catalog() []model.FoodItem
}

type foodService struct {
	catalogRepo     repository.CatalogRepository
	searcher        VectorSearcher
	embeddingClient embedding.Client
	noResultText    string
}

// NewFoodService 创建菜品检索服务。
// searcher 或 embeddingClient 为 nil 时只使用关键词匹配。
func NewFoodService(catalogRepo repository.CatalogRepository, searcher VectorSearcher, embeddingClient embedding.Client, noResultText string) FoodService {
	return &foodService{
		catalogRepo:     catalogRepo,
		searcher:        searcher,
		embeddingClient: embeddingClient,
		noResultText:    noResultText,
	}
}

func (s *foodService) Retrieve(ctx context.Context, rawQuery, searchQuery string, topK int, filter *model.FoodFilter) ([]model.CandidateMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	catalog := s.catalogRepo.All()
	if len(catalog) == 0 {
		return []model.CandidateMatch{}, nil
	}

	signatureIntent := HasSignatureIntent(rawQuery)
	var matches []model.CandidateMatch
	vectorDone := false

	if s.searcher != nil && s.embeddingClient != nil {
		vectorMatches, err := s.vectorSearch(ctx, searchQuery, topK, filter, signatureIntent)
		if err != nil {
			log.Warnf("[FoodService] 向量检索失败, 退化为关键词匹配: %v", err)
		} else {
			// 向量检索成功但无命中时保持空结果，不再退化。
			matches = vectorMatches
			vectorDone = true
		}
	}

	if !vectorDone {
		matches = s.keywordFallback(searchQuery, catalog, topK, filter)
	}

	// 加分重排只在用户原话提到招牌词或店名时生效。
	if mentionsHouseSpecial(rawQuery) {
		applySpecialBoost(matches)
	}
	if signatureIntent {
		matches = ensureSignatureItems(matches, catalog, topK)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []model.CandidateMatch{}
	}
	return matches, nil
}

// vectorSearch 执行向量检索。招牌意图时先查热门子集，
// 子集非空就直接作为候选集，只有为空才退回不带热门过滤的检索。
func (s *foodService) vectorSearch(ctx context.Context, searchQuery string, topK int, filter *model.FoodFilter, signatureIntent bool) ([]model.CandidateMatch, error) {
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	if signatureIntent {
		popularFilter := model.FoodFilter{Popular: true}
		if filter != nil {
			popularFilter = *filter
			popularFilter.Popular = true
		}
		popular, err := s.searcher.SearchFoods(ctx, queryVector, topK, &popularFilter)
		if err != nil {
			return nil, err
		}
		if len(popular) > 0 {
			return popular, nil
		}
	}

	return s.searcher.SearchFoods(ctx, queryVector, topK, filter)
}

// keywordFallback 对目录全量打分，返回得分为正的前 topK 条。
// 过滤条件在打分前生效，与向量路径语义一致。
// 同分时保持目录顺序（按 ID 升序），结果确定。
func (s *foodService) keywordFallback(query string, catalog []model.FoodItem, topK int, filter *model.FoodFilter) []model.CandidateMatch {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return []model.CandidateMatch{}
	}
	keywords := strings.Fields(queryLower)

	var matches []model.CandidateMatch
	for i := range catalog {
		item := catalog[i]
		if !matchesFilter(&item, filter) {
			continue
		}
		score := scoreItem(&item, queryLower, keywords)
		if score > 0 {
			matches = append(matches, model.CandidateMatch{Item: item, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []model.CandidateMatch{}
	}
	return matches
}

// scoreItem 计算单个菜品对查询的关键词相关性得分。
// 权重是调出来的经验值，只保证同一次打分内可比。
func scoreItem(item *model.FoodItem, queryLower string, keywords []string) float64 {
	score := 0.0
	nameLower := strings.ToLower(item.Name)
	searchable := item.SearchableText()

	// 查询整体作为名称子串出现是最强信号。
	if strings.Contains(nameLower, queryLower) {
		score += 10
	}
	if item.Category != "" {
		categoryLower := strings.ToLower(item.Category)
		for _, kw := range keywords {
			if strings.Contains(categoryLower, kw) {
				score += 5
				break
			}
		}
	}
	if item.Description != "" && strings.Contains(strings.ToLower(item.Description), queryLower) {
		score += 4
	}

	for _, kw := range keywords {
		if strings.Contains(searchable, kw) {
			score++
			if strings.Contains(nameLower, kw) {
				score += 2
			}
		}
	}

	// 饮食意图：查询中出现意图词，且菜品文本命中该意图的词汇表。
	for intent, vocab := range dietIntentVocab {
		if !strings.Contains(queryLower, intent) {
			continue
		}
		if containsAny(searchable, vocab) {
			score += 3
		}
	}

	// 极端卡路里加权：清淡意图偏向低卡，放纵意图偏向高卡。
	if item.Calories > 0 {
		if item.Calories < healthyCalorieLimit && strings.Contains(queryLower, "healthy") {
			score += 2
		}
		if item.Calories > junkCalorieFloor && strings.Contains(queryLower, "junk") {
			score += 2
		}
	}
	return score
}

// matchesFilter 判断菜品是否通过合取过滤条件，nil 过滤器放行一切。
func matchesFilter(item *model.FoodItem, filter *model.FoodFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Category != "" && item.Category != filter.Category {
		return false
	}
	if filter.MaxCalories != nil && item.Calories > 0 && item.Calories > *filter.MaxCalories {
		return false
	}
	if filter.MinCalories != nil && (item.Calories == 0 || item.Calories < *filter.MinCalories) {
		return false
	}
	tags := item.DietaryTags()
	if filter.Dietary != "" && !hasTag(tags, filter.Dietary) {
		return false
	}
	if filter.LowCalorie && !hasTag(tags, "low-calorie") {
		return false
	}
	if filter.Popular && !item.IsPopular {
		return false
	}
	return true
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

// applySpecialBoost 对名称含招牌/店名词的菜品加 0.1 分并稳定重排。
func applySpecialBoost(matches []model.CandidateMatch) {
	boosted := false
	for i := range matches {
		nameLower := strings.ToLower(matches[i].Item.Name)
		if strings.Contains(nameLower, "special") || strings.Contains(nameLower, houseName) {
			matches[i].Score += 0.1
			boosted = true
		}
	}
	if boosted {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Score > matches[j].Score
		})
	}
}

// ensureSignatureItems 保证招牌名单中的在售菜品全部出现在候选里。
// 先淘汰得分最低的非招牌候选腾出空间，缺席的招牌菜按名单顺序
// 以 1.0 分追加到队尾，不触发全局重排。
func ensureSignatureItems(matches []model.CandidateMatch, catalog []model.FoodItem, topK int) []model.CandidateMatch {
	present := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		present[m.Item.Name] = struct{}{}
	}

	var missing []model.FoodItem
	for _, name := range model.SignatureItemNames {
		if _, ok := present[name]; ok {
			continue
		}
		for i := range catalog {
			if catalog[i].Name == name {
				missing = append(missing, catalog[i])
				break
			}
		}
	}
	if len(missing) == 0 {
		return matches
	}

	// 腾位：按得分从低到高移除非招牌候选，直到装得下全部招牌菜。
	for len(matches)+len(missing) > topK {
		lowest := -1
		for i := range matches {
			if matches[i].Item.IsSignature() {
				continue
			}
			if lowest < 0 || matches[i].Score < matches[lowest].Score {
				lowest = i
			}
		}
		if lowest < 0 {
			break
		}
		matches = append(matches[:lowest], matches[lowest+1:]...)
	}

	for _, item := range missing {
		matches = append(matches, model.CandidateMatch{Item: item, Score: 1.0})
	}
	return matches
}

// BuildFoodContext 把候选列表格式化为注入 prompt 的菜单文本。
// 末尾附带名称到内部 ID 的对照表，供回复落地时反查。
func (s *foodService) BuildFoodContext(candidates []model.CandidateMatch) string {
	if len(candidates) == 0 {
		return s.noResultText
	}

	var b strings.Builder
	for i, c := range candidates {
		item := c.Item
		calories := "N/A"
		if item.Calories > 0 {
			calories = fmt.Sprintf("%d", item.Calories)
		}
		dietary := "N/A"
		if tags := item.DietaryTags(); len(tags) > 0 {
			dietary = strings.Join(tags, ", ")
		}
		fmt.Fprintf(&b, "%d. %s (%s): %s | Calories: %s | Price: ₹%.2f | Dietary: %s | Macros: %s\n",
			i+1, item.Name, item.Category, item.Description, calories, item.Price, dietary, item.MacronutrientText())
	}

	b.WriteString("\nInternal reference (never reveal these IDs to the customer):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "[%s = %s]\n", c.Item.Name, c.Item.ID)
	}
	return b.String()
}

func (s *foodService) GetFoodByID(ctx context.Context, id string) (*model.FoodItem, error) {
	if item, ok := s.catalogRepo.FindByID(id); ok {
		return &item, nil
	}
	if s.searcher != nil {
		return s.searcher.GetFoodByID(ctx, id)
	}
	return nil, nil
}

func (s *foodService) ListFoods(category string, limit, offset int) []model.FoodItem {
	catalog := s.catalogRepo.All()
	filtered := catalog
	if category != "" {
		filtered = make([]model.FoodItem, 0)
		for _, item := range catalog {
			if strings.EqualFold(item.Category, category) {
				filtered = append(filtered, item)
			}
		}
	}
	if offset >= len(filtered) {
		return []model.FoodItem{}
	}
	filtered = filtered[offset:]
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func (s *foodService) Categories() []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, item := range s.catalogRepo.All() {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		categories = append(categories, item.Category)
	}
	sort.Strings(categories)
	return categories
}

func (s *foodService) Statistics() map[string]interface{} {
	catalog := s.catalogRepo.All()
	byCategory := make(map[string]int)
	popular := 0
	signature := 0
	for i := range catalog {
		byCategory[catalog[i].Category]++
		if catalog[i].IsPopular {
			popular++
		}
		if catalog[i].IsSignature() {
			signature++
		}
	}
	return map[string]interface{}{
		"totalItems":     len(catalog),
		"byCategory":     byCategory,
		"popularItems":   popular,
		"signatureItems": signature,
	}
}

func (s *foodService) Catalog() []model.FoodItem {
	return s.catalogRepo.All()
}
