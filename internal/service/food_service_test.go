package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalogRepo 是 CatalogRepository 的内存假实现。
type fakeCatalogRepo struct {
	items []model.FoodItem
}

func (f *fakeCatalogRepo) All() []model.FoodItem { return f.items }
func (f *fakeCatalogRepo) FindByID(id string) (model.FoodItem, bool) {
	for _, item := range f.items {
		if item.ID == id {
			return item, true
		}
	}
	return model.FoodItem{}, false
}
func (f *fakeCatalogRepo) FindByName(name string) (model.FoodItem, bool) {
	for _, item := range f.items {
		if item.Name == name {
			return item, true
		}
	}
	return model.FoodItem{}, false
}
func (f *fakeCatalogRepo) Count() int { return len(f.items) }
func (f *fakeCatalogRepo) SaveBatch(items []model.FoodItem) error {
	f.items = append(f.items, items...)
	return nil
}
func (f *fakeCatalogRepo) UpdateImage(id, imageObject string) error { return nil }
func (f *fakeCatalogRepo) Reload() error                            { return nil }

// failingEmbedder 总是返回错误，模拟向量化服务不可用。
type failingEmbedder struct{}

func (failingEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

// fixedEmbedder 返回固定向量。
type fixedEmbedder struct{}

func (fixedEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeSearcher 返回预设结果或错误；带热门过滤时返回 popular 子集。
type fakeSearcher struct {
	matches []model.CandidateMatch
	popular []model.CandidateMatch
	err     error
}

func (f *fakeSearcher) SearchFoods(ctx context.Context, vector []float32, topK int, filter *model.FoodFilter) ([]model.CandidateMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := f.matches
	if filter != nil && filter.Popular {
		result = f.popular
	}
	if len(result) > topK {
		return result[:topK], nil
	}
	return result, nil
}

func (f *fakeSearcher) GetFoodByID(ctx context.Context, id string) (*model.FoodItem, error) {
	for _, m := range f.matches {
		if m.Item.ID == id {
			item := m.Item
			return &item, nil
		}
	}
	return nil, nil
}

func testCatalog() []model.FoodItem {
	return []model.FoodItem{
		{ID: "tea", Name: "Niloufer Special Tea", Description: "Signature Irani chai", Category: "Beverages", Calories: 120, IsPopular: true, DietaryRaw: `["vegetarian"]`},
		{ID: "coffee", Name: "Niloufer Special Coffee", Description: "House filter coffee", Category: "Beverages", Calories: 140, IsPopular: true, DietaryRaw: `["vegetarian"]`},
		{ID: "maska", Name: "Maska Bun", Description: "Bun with butter", Category: "Bakery", Calories: 280, IsPopular: true, DietaryRaw: `["vegetarian"]`},
		{ID: "khara", Name: "Khara Bun", Description: "Savoury spiced bun", Category: "Bakery", Calories: 260, IsPopular: true, DietaryRaw: `["vegetarian"]`},
		{ID: "salad", Name: "Sprout Salad", Description: "Protein-rich salad of mixed sprouts", Category: "Healthy", Calories: 180, DietaryRaw: `["vegan","high-protein","low-calorie"]`},
		{ID: "chicken", Name: "Chicken 65", Description: "Crispy fried chicken", Category: "Starters", Calories: 450, DietaryRaw: `["high-protein"]`},
		{ID: "sandwich", Name: "Veg Club Sandwich", Description: "Triple-decker sandwich with cheese", Category: "Snacks", Calories: 380, DietaryRaw: `["vegetarian"]`},
	}
}

func newTestFoodService(searcher VectorSearcher, embedder embedding.Client) (FoodService, *fakeCatalogRepo) {
	repo := &fakeCatalogRepo{items: testCatalog()}
	svc := NewFoodService(repo, searcher, embedder, "No matching dishes found.")
	return svc, repo
}

func TestRetrieveEmptyCatalog(t *testing.T) {
	repo := &fakeCatalogRepo{}
	svc := NewFoodService(repo, nil, nil, "none")
	got, err := svc.Retrieve(context.Background(), "anything", "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveKeywordFallback(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	t.Run("全名命中排第一", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "maska bun", "maska bun", 5, nil)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "maska", got[0].Item.ID)
		// 全名 +10 + 两个关键词各 +3
		assert.InDelta(t, 16.0, got[0].Score, 1e-9)
	})

	t.Run("无命中返回空", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "zzz qqq", "zzz qqq", 5, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("饮食意图加权", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "something healthy please", "something healthy please", 3, nil)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		// 低卡高蛋白的沙拉应当领先：分类命中 +5、意图词 +3、低卡 +2
		assert.Equal(t, "salad", got[0].Item.ID)
	})

	t.Run("结果不超过 topK", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "bun sandwich chicken salad tea coffee", "bun sandwich chicken salad tea coffee", 2, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 2)
	})
}

func TestRetrieveSignatureForceInclude(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	got, err := svc.Retrieve(context.Background(), "what are your special items", "what are your special items", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	names := make(map[string]bool, len(got))
	for _, m := range got {
		names[m.Item.Name] = true
	}
	for _, sig := range model.SignatureItemNames {
		assert.True(t, names[sig], "招牌菜 %q 必须出现在候选中", sig)
	}
	assert.LessOrEqual(t, len(got), 5)
}

func TestRetrieveVectorBackendFailureFallsBack(t *testing.T) {
	t.Run("向量化失败", func(t *testing.T) {
		svc, _ := newTestFoodService(&fakeSearcher{}, failingEmbedder{})
		got, err := svc.Retrieve(context.Background(), "maska bun", "maska bun", 5, nil)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "maska", got[0].Item.ID)
	})

	t.Run("检索后端报错", func(t *testing.T) {
		svc, _ := newTestFoodService(&fakeSearcher{err: errors.New("es unreachable")}, fixedEmbedder{})
		got, err := svc.Retrieve(context.Background(), "maska bun", "maska bun", 5, nil)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "maska", got[0].Item.ID)
	})
}

func TestScoreItemNameDirection(t *testing.T) {
	// 查询整体是名称子串时才拿全名加分
	tea := model.FoodItem{Name: "Niloufer Special Tea"}
	score := scoreItem(&tea, "special tea", []string{"special", "tea"})
	assert.InDelta(t, 16.0, score, 1e-9)

	// 短菜名出现在长句里不构成全名命中
	short := model.FoodItem{Name: "Tea"}
	score = scoreItem(&short, "what goes well with tea", []string{"what", "goes", "well", "with", "tea"})
	assert.InDelta(t, 3.0, score, 1e-9)
}

func TestRetrieveSpecialBoostRequiresTriggerInQuery(t *testing.T) {
	repo := &fakeCatalogRepo{items: []model.FoodItem{
		{ID: "a", Name: "Paneer Tikka", Category: "Starters"},
		{ID: "b", Name: "Niloufer Special Paneer", Category: "Starters"},
	}}
	svc := NewFoodService(repo, nil, nil, "none")

	t.Run("查询未提到招牌词或店名时不加分", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "paneer", "paneer", 5, nil)
		require.NoError(t, err)
		require.Len(t, got, 2)
		// 同分保持目录顺序，分数没有加成尾数
		assert.Equal(t, "a", got[0].Item.ID)
		assert.InDelta(t, 13.0, got[0].Score, 1e-9)
		assert.InDelta(t, 13.0, got[1].Score, 1e-9)
	})

	t.Run("提到店名时生效", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "niloufer paneer", "niloufer paneer", 5, nil)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Item.ID)
		assert.InDelta(t, 6.1, got[0].Score, 1e-9)
	})
}

func TestRetrieveKeywordPathAppliesFilter(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	t.Run("分类过滤", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "bun sandwich tea", "bun sandwich tea", 5, &model.FoodFilter{Category: "Bakery"})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		for _, m := range got {
			assert.Equal(t, "Bakery", m.Item.Category)
		}
	})

	t.Run("最大卡路里过滤", func(t *testing.T) {
		max := 200
		got, err := svc.Retrieve(context.Background(), "bun tea", "bun tea", 5, &model.FoodFilter{MaxCalories: &max})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "tea", got[0].Item.ID)
	})

	t.Run("膳食标签过滤", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), "protein salad chicken", "protein salad chicken", 5, &model.FoodFilter{Dietary: "vegan"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "salad", got[0].Item.ID)
	})
}

func TestRetrieveKeywordPathUsesContextualQuery(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	// 用户原话没有任何菜名，上下文改写后的查询才有
	got, err := svc.Retrieve(context.Background(), "tell me more", "tell me more maska bun", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "maska", got[0].Item.ID)
}

func TestRetrieveCategoryTokenOverlap(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	// 单数 "snack" 命中分类 "Snacks"
	got, err := svc.Retrieve(context.Background(), "snack", "snack", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "sandwich", got[0].Item.ID)
}

func TestRetrieveKeepsShortTokens(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	got, err := svc.Retrieve(context.Background(), "65", "65", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "chicken", got[0].Item.ID)
}

func TestVectorSearchPopularSubsetIsFinal(t *testing.T) {
	catalog := testCatalog()
	searcher := &fakeSearcher{
		popular: []model.CandidateMatch{
			{Item: catalog[0], Score: 0.9},
			{Item: catalog[2], Score: 0.8},
		},
		matches: []model.CandidateMatch{
			{Item: catalog[0], Score: 0.9},
			{Item: catalog[2], Score: 0.8},
			{Item: catalog[4], Score: 0.7},
			{Item: catalog[5], Score: 0.6},
		},
	}
	svc := &foodService{catalogRepo: &fakeCatalogRepo{items: catalog}, searcher: searcher, embeddingClient: fixedEmbedder{}}

	// 热门子集非空时直接作为候选集，不用全量结果补位
	got, err := svc.vectorSearch(context.Background(), "signature items", 5, nil, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tea", got[0].Item.ID)
	assert.Equal(t, "maska", got[1].Item.ID)

	// 热门子集为空才退回不带热门过滤的检索
	searcher.popular = nil
	got, err = svc.vectorSearch(context.Background(), "signature items", 5, nil, true)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestRetrieveEmptyVectorResultStaysEmpty(t *testing.T) {
	svc, _ := newTestFoodService(&fakeSearcher{}, fixedEmbedder{})

	// 向量检索成功但零命中时保持空结果，不退化为关键词匹配
	got, err := svc.Retrieve(context.Background(), "maska bun", "maska bun", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplySpecialBoost(t *testing.T) {
	matches := []model.CandidateMatch{
		{Item: model.FoodItem{ID: "a", Name: "Plain Dosa"}, Score: 2.0},
		{Item: model.FoodItem{ID: "b", Name: "Niloufer Special Tea"}, Score: 2.0},
	}
	applySpecialBoost(matches)
	assert.Equal(t, "b", matches[0].Item.ID)
	assert.InDelta(t, 2.1, matches[0].Score, 1e-9)
	assert.Equal(t, "a", matches[1].Item.ID)
}

func TestEnsureSignatureItemsEvictsLowestNonSignature(t *testing.T) {
	catalog := testCatalog()
	matches := []model.CandidateMatch{
		{Item: catalog[5], Score: 5.0}, // Chicken 65
		{Item: catalog[6], Score: 4.0}, // Veg Club Sandwich
		{Item: catalog[4], Score: 3.0}, // Sprout Salad
		{Item: catalog[0], Score: 2.5}, // Niloufer Special Tea
		{Item: catalog[2], Score: 2.0}, // Maska Bun
	}

	got := ensureSignatureItems(matches, catalog, 5)
	require.Len(t, got, 5)

	names := make(map[string]bool)
	for _, m := range got {
		names[m.Item.Name] = true
	}
	for _, sig := range model.SignatureItemNames {
		assert.True(t, names[sig])
	}
	// 只剩一个非招牌位，得分最高的 Chicken 65 保留
	assert.True(t, names["Chicken 65"])
	assert.False(t, names["Veg Club Sandwich"])
	assert.False(t, names["Sprout Salad"])
}

func TestBuildFoodContext(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	t.Run("空候选返回兜底文案", func(t *testing.T) {
		assert.Equal(t, "No matching dishes found.", svc.BuildFoodContext(nil))
	})

	t.Run("包含编号条目与内部 ID 对照", func(t *testing.T) {
		catalog := testCatalog()
		ctxText := svc.BuildFoodContext([]model.CandidateMatch{
			{Item: catalog[0], Score: 1.0},
			{Item: catalog[2], Score: 0.9},
		})
		assert.True(t, strings.HasPrefix(ctxText, "1. Niloufer Special Tea"))
		assert.Contains(t, ctxText, "2. Maska Bun")
		assert.Contains(t, ctxText, "[Niloufer Special Tea = tea]")
		assert.Contains(t, ctxText, "[Maska Bun = maska]")
	})
}

func TestListFoodsAndCategories(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)

	bakery := svc.ListFoods("Bakery", 10, 0)
	require.Len(t, bakery, 2)

	paged := svc.ListFoods("", 3, 0)
	assert.Len(t, paged, 3)
	assert.Empty(t, svc.ListFoods("", 10, 100))

	categories := svc.Categories()
	assert.Equal(t, []string{"Bakery", "Beverages", "Healthy", "Snacks", "Starters"}, categories)
}

func TestStatistics(t *testing.T) {
	svc, _ := newTestFoodService(nil, nil)
	stats := svc.Statistics()
	assert.Equal(t, 7, stats["totalItems"])
	assert.Equal(t, 4, stats["popularItems"])
	assert.Equal(t, 4, stats["signatureItems"])
}
