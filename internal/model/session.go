package model

import "time"

// 会话消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn 代表会话中的一条消息，追加后不再修改。
type ConversationTurn struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RecommendationEvent 记录一次助手回复实际推荐的菜品。
// FoodIDs 允许为空：空表示"本轮没有推荐任何菜品"，与"尚未计算"是两回事。
type RecommendationEvent struct {
	FoodIDs   []string  `json:"food_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 是以 session_id 为键的会话状态聚合。
// Turns 与 RecommendationEvents 各自按插入顺序追加，永不重排或去重；
// Turns 超过保留上限时按 FIFO 淘汰最旧的消息。
type Session struct {
	SessionID            string                 `json:"session_id"`
	CreatedAt            time.Time              `json:"created_at"`
	LastActivity         time.Time              `json:"last_activity"`
	Turns                []ConversationTurn     `json:"turns"`
	RecommendationEvents []RecommendationEvent  `json:"recommendation_events"`
	Preferences          map[string]interface{} `json:"preferences"`
}

// Clone 返回会话的深拷贝，供持有方在锁外安全读取。
func (s *Session) Clone() *Session {
	cp := &Session{
		SessionID:    s.SessionID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Preferences:  make(map[string]interface{}, len(s.Preferences)),
	}
	cp.Turns = append([]ConversationTurn(nil), s.Turns...)
	cp.RecommendationEvents = make([]RecommendationEvent, 0, len(s.RecommendationEvents))
	for _, ev := range s.RecommendationEvents {
		cp.RecommendationEvents = append(cp.RecommendationEvents, RecommendationEvent{
			FoodIDs:   append([]string(nil), ev.FoodIDs...),
			Timestamp: ev.Timestamp,
		})
	}
	for k, v := range s.Preferences {
		cp.Preferences[k] = v
	}
	return cp
}

// SessionStats 是单个会话的统计摘要。
type SessionStats struct {
	SessionID            string    `json:"sessionId"`
	TotalMessages        int       `json:"totalMessages"`
	UserMessages         int       `json:"userMessages"`
	AssistantMessages    int       `json:"assistantMessages"`
	TotalRecommendations int       `json:"totalRecommendations"`
	UniqueFoodItems      int       `json:"uniqueFoodItems"`
	CreatedAt            LocalTime `json:"createdAt"`
	LastActivity         LocalTime `json:"lastActivity"`
}
