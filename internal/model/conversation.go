package model

import "time"

// Conversation 代表一次问答交互的分析记录，落库 MySQL 供后台统计。
type Conversation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SessionID      string    `gorm:"index;type:varchar(64);not null" json:"sessionId"`
	Question       string    `gorm:"type:text;not null" json:"question"`
	Answer         string    `gorm:"type:text;not null" json:"answer"`
	RecommendedIDs string    `gorm:"type:text" json:"recommendedIds"` // 逗号分隔的菜品 ID
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}
