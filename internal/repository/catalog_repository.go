// Package repository 提供了数据访问层的实现。
package repository

import (
	"fmt"
	"sync"

	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/pkg/log"

	"gorm.io/gorm"
)

// CatalogRepository 定义了菜品目录的只读访问与导入操作。
// 目录由离线导入流程写入，检索阶段只读；内存缓存按 ID 升序
// 作为稳定的目录顺序（关键词兜底的并列打破依赖这个顺序）。
type CatalogRepository interface {
	All() []model.FoodItem
	FindByID(id string) (model.FoodItem, bool)
	FindByName(name string) (model.FoodItem, bool)
	Count() int
	SaveBatch(items []model.FoodItem) error
	UpdateImage(id, imageObject string) error
	Reload() error
}

type mysqlCatalogRepository struct {
	db    *gorm.DB
	mu    sync.RWMutex
	cache []model.FoodItem
	byID  map[string]int
}

// NewCatalogRepository 创建目录仓库并加载内存缓存。
func NewCatalogRepository(db *gorm.DB) (CatalogRepository, error) {
	r := &mysqlCatalogRepository{db: db}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload 从 MySQL 重建内存缓存。
func (r *mysqlCatalogRepository) Reload() error {
	var items []model.FoodItem
	if err := r.db.Order("id asc").Find(&items).Error; err != nil {
		return fmt.Errorf("加载菜品目录失败: %w", err)
	}
	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}
	r.mu.Lock()
	r.cache = items
	r.byID = byID
	r.mu.Unlock()
	log.Infof("[CatalogRepository] 目录缓存已加载, 共 %d 条菜品", len(items))
	return nil
}

// All 返回目录快照（调用方不得修改返回的切片）。
func (r *mysqlCatalogRepository) All() []model.FoodItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache
}

func (r *mysqlCatalogRepository) FindByID(id string) (model.FoodItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return model.FoodItem{}, false
	}
	return r.cache[idx], true
}

func (r *mysqlCatalogRepository) FindByName(name string) (model.FoodItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.cache {
		if item.Name == name {
			return item, true
		}
	}
	return model.FoodItem{}, false
}

func (r *mysqlCatalogRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// SaveBatch 批量落库并刷新缓存，导入流程专用。
func (r *mysqlCatalogRepository) SaveBatch(items []model.FoodItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(items, 100).Error; err != nil {
		return fmt.Errorf("批量写入菜品失败: %w", err)
	}
	return r.Reload()
}

// UpdateImage 更新菜品的图片对象名并刷新缓存。
func (r *mysqlCatalogRepository) UpdateImage(id, imageObject string) error {
	res := r.db.Model(&model.FoodItem{}).Where("id = ?", id).Update("image_object", imageObject)
	if res.Error != nil {
		return fmt.Errorf("更新菜品图片失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("菜品不存在: %s", id)
	}
	return r.Reload()
}
