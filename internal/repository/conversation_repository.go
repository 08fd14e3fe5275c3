package repository

import (
	"fmt"

	"niloufer-chat-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 把每轮问答持久化到 MySQL，供后续分析使用。
type ConversationRepository interface {
	Save(conv *model.Conversation) error
	FindBySessionID(sessionID string, limit int) ([]model.Conversation, error)
	CountBySessionID(sessionID string) (int64, error)
}

type mysqlConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建对话记录仓库。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &mysqlConversationRepository{db: db}
}

// Save 保存一条问答记录。
func (r *mysqlConversationRepository) Save(conv *model.Conversation) error {
	if err := r.db.Create(conv).Error; err != nil {
		return fmt.Errorf("保存对话记录失败: %w", err)
	}
	return nil
}

// FindBySessionID 按时间倒序返回指定会话的问答记录。
func (r *mysqlConversationRepository) FindBySessionID(sessionID string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	query := r.db.Where("session_id = ?", sessionID).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("查询对话记录失败: %w", err)
	}
	return convs, nil
}

// CountBySessionID 返回指定会话的问答记录数。
func (r *mysqlConversationRepository) CountBySessionID(sessionID string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Conversation{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计对话记录失败: %w", err)
	}
	return count, nil
}
