// Package pipeline 定义了菜品入索引的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/embedding"
	"niloufer-chat-go/pkg/es"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/tasks"
)

// Processor 封装了菜品向量化入索引的所有依赖和逻辑。
type Processor struct {
	embeddingClient embedding.Client
	esClient        *es.Client
	embeddingCfg    config.EmbeddingConfig
	catalogRepo     repository.CatalogRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	embeddingClient embedding.Client,
	esClient *es.Client,
	embeddingCfg config.EmbeddingConfig,
	catalogRepo repository.CatalogRepository,
) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		embeddingCfg:    embeddingCfg,
		catalogRepo:     catalogRepo,
	}
}

// Process 处理单个菜品的入索引任务：加载目录记录、向量化、写入 ES。
// 同一菜品重复处理是幂等的（按 ID 覆盖写入）。
func (p *Processor) Process(ctx context.Context, task tasks.CatalogIngestTask) error {
	log.Infof("[Processor] 开始处理菜品入索引任务, FoodID: %s", task.FoodID)

	item, ok := p.catalogRepo.FindByID(task.FoodID)
	if !ok {
		log.Warnf("[Processor] 菜品不存在, 跳过入索引, FoodID: %s", task.FoodID)
		return nil
	}

	if !task.Reindex {
		existing, err := p.esClient.GetFoodByID(ctx, task.FoodID)
		if err != nil {
			log.Warnf("[Processor] 检查菜品索引状态失败, 继续重建, FoodID: %s, Error: %v", task.FoodID, err)
		} else if existing != nil {
			log.Infof("[Processor] 菜品已在索引中, 跳过, FoodID: %s", task.FoodID)
			return nil
		}
	}

	embedText := embeddingText(&item)
	vector, err := p.embeddingClient.CreateEmbedding(ctx, embedText)
	if err != nil {
		log.Errorf("[Processor] 菜品向量化失败, FoodID: %s, Error: %v", task.FoodID, err)
		return fmt.Errorf("菜品 %s 向量化失败: %w", task.FoodID, err)
	}

	doc := model.NewEsFoodDocument(item, vector, p.embeddingCfg.Model)
	if err := p.esClient.IndexFood(ctx, doc); err != nil {
		log.Errorf("[Processor] 索引菜品到 Elasticsearch 失败, FoodID: %s, Error: %v", task.FoodID, err)
		return fmt.Errorf("索引菜品 %s 失败: %w", task.FoodID, err)
	}

	log.Infof("[Processor] 菜品入索引成功, FoodID: %s, Name: %s", task.FoodID, item.Name)
	return nil
}

// embeddingText 拼接用于向量化的菜品描述文本。
// 字段顺序固定，保证同一菜品的向量可复现。
func embeddingText(item *model.FoodItem) string {
	parts := []string{item.Name, item.Category}
	if item.SubCategory != "" {
		parts = append(parts, item.SubCategory)
	}
	if item.Description != "" {
		parts = append(parts, item.Description)
	}
	if tags := item.DietaryTags(); len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	if ingredients := item.Ingredients(); len(ingredients) > 0 {
		parts = append(parts, strings.Join(ingredients, " "))
	}
	return strings.Join(parts, ". ")
}
