package handler

import (
	"net/http"
	"strconv"

	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 负责历史问答记录的查询接口。
type AnalyticsHandler struct {
	conversationRepo repository.ConversationRepository
}

// NewAnalyticsHandler 创建一个新的 AnalyticsHandler。
func NewAnalyticsHandler(conversationRepo repository.ConversationRepository) *AnalyticsHandler {
	return &AnalyticsHandler{conversationRepo: conversationRepo}
}

// GetConversations 按会话返回落库的问答记录（时间倒序）。
func (h *AnalyticsHandler) GetConversations(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}

	convs, err := h.conversationRepo.FindBySessionID(sessionID, limit)
	if err != nil {
		log.Errorf("查询对话记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询对话记录失败", "data": nil})
		return
	}
	total, err := h.conversationRepo.CountBySessionID(sessionID)
	if err != nil {
		log.Errorf("统计对话记录失败: %v", err)
		total = int64(len(convs))
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"conversations": convs, "total": total}})
}
