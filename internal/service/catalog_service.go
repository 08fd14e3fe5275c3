package service

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/tasks"
)

// ProduceFunc 把入索引任务投递到消息队列。为 nil 时跳过异步入索引。
type ProduceFunc func(task tasks.CatalogIngestTask) error

// CatalogService 负责菜单目录的初始化导入与重建索引。
type CatalogService interface {
	// ImportSeed 从种子文件导入目录。目录非空时跳过（幂等）。
	ImportSeed(ctx context.Context, path string) error
	// EnqueueReindexAll 为目录中的每个菜品投递一个重建索引任务，返回任务数。
	EnqueueReindexAll() (int, error)
}

type catalogService struct {
	catalogRepo repository.CatalogRepository
	produce     ProduceFunc
}

// NewCatalogService 创建目录导入服务。
func NewCatalogService(catalogRepo repository.CatalogRepository, produce ProduceFunc) CatalogService {
	return &catalogService{catalogRepo: catalogRepo, produce: produce}
}

// seedItem 是种子文件中单条菜品的结构。
type seedItem struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	SubCategory    string            `json:"sub_category"`
	Calories       int               `json:"calories"`
	Price          float64           `json:"price"`
	Dietary        []string          `json:"dietary"`
	Ingredients    []string          `json:"ingredients"`
	Macronutrients map[string]string `json:"macronutrients"`
	IsPopular      bool              `json:"is_popular"`
}

func (s *catalogService) ImportSeed(ctx context.Context, path string) error {
	if s.catalogRepo.Count() > 0 {
		log.Infof("[CatalogService] 目录已有 %d 条菜品, 跳过种子导入", s.catalogRepo.Count())
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取种子文件 '%s' 失败: %w", path, err)
	}

	var seeds []seedItem
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("解析种子文件 '%s' 失败: %w", path, err)
	}
	if len(seeds) == 0 {
		log.Warnf("[CatalogService] 种子文件 '%s' 为空, 跳过导入", path)
		return nil
	}

	items := make([]model.FoodItem, 0, len(seeds))
	seen := make(map[string]struct{}, len(seeds))
	for _, seed := range seeds {
		if seed.Name == "" {
			continue
		}
		id := seed.ID
		if id == "" {
			id = deriveFoodID(seed.Name)
		}
		if _, dup := seen[id]; dup {
			log.Warnf("[CatalogService] 种子文件中存在重复 ID '%s', 后者被忽略", id)
			continue
		}
		seen[id] = struct{}{}

		dietaryRaw, _ := json.Marshal(seed.Dietary)
		ingredientsRaw, _ := json.Marshal(seed.Ingredients)
		macrosRaw, _ := json.Marshal(seed.Macronutrients)
		items = append(items, model.FoodItem{
			ID:             id,
			Name:           seed.Name,
			Description:    seed.Description,
			Category:       seed.Category,
			SubCategory:    seed.SubCategory,
			Calories:       seed.Calories,
			Price:          seed.Price,
			DietaryRaw:     string(dietaryRaw),
			IngredientsRaw: string(ingredientsRaw),
			MacrosRaw:      string(macrosRaw),
			IsPopular:      seed.IsPopular,
		})
	}

	if err := s.catalogRepo.SaveBatch(items); err != nil {
		return fmt.Errorf("导入种子菜品失败: %w", err)
	}
	log.Infof("[CatalogService] 种子导入完成, 共 %d 条菜品", len(items))

	if s.produce != nil {
		enqueued := 0
		for _, item := range items {
			if err := s.produce(tasks.CatalogIngestTask{FoodID: item.ID}); err != nil {
				log.Warnf("[CatalogService] 投递入索引任务失败, FoodID: %s, Error: %v", item.ID, err)
				continue
			}
			enqueued++
		}
		log.Infof("[CatalogService] 已投递 %d 个入索引任务", enqueued)
	}
	return nil
}

func (s *catalogService) EnqueueReindexAll() (int, error) {
	if s.produce == nil {
		return 0, fmt.Errorf("消息队列未配置, 无法重建索引")
	}
	enqueued := 0
	for _, item := range s.catalogRepo.All() {
		if err := s.produce(tasks.CatalogIngestTask{FoodID: item.ID, Reindex: true}); err != nil {
			return enqueued, fmt.Errorf("投递重建索引任务失败 (FoodID=%s): %w", item.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

var foodIDSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// deriveFoodID 从菜品名称派生稳定的 ID：小写连字符 slug 加名称哈希前缀。
func deriveFoodID(name string) string {
	slug := strings.Trim(foodIDSanitizer.ReplaceAllString(strings.ToLower(name), "-"), "-")
	sum := md5.Sum([]byte(name))
	return fmt.Sprintf("%s-%x", slug, sum[:4])
}
