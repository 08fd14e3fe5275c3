package handler

import (
	"errors"
	"net/http"

	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责会话管理接口。
type SessionHandler struct {
	sessionRepo repository.SessionRepository
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(sessionRepo repository.SessionRepository) *SessionHandler {
	return &SessionHandler{sessionRepo: sessionRepo}
}

// GetSession 返回会话的完整状态，不存在时返回 404。
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	sess, err := h.sessionRepo.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
			return
		}
		log.Errorf("获取会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess})
}

// GetSessionStats 返回会话的统计摘要。
func (h *SessionHandler) GetSessionStats(c *gin.Context) {
	sessionID := c.Param("sessionId")
	stats, err := h.sessionRepo.Stats(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
			return
		}
		log.Errorf("获取会话统计失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话统计失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": stats})
}

// ListSessions 返回当前活跃的会话 ID 列表。
func (h *SessionHandler) ListSessions(c *gin.Context) {
	ids, err := h.sessionRepo.List(c.Request.Context())
	if err != nil {
		log.Errorf("列出会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "列出会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"sessions": ids, "count": len(ids)}})
}

// DeleteSession 删除会话，不存在时返回 404。
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	deleted, err := h.sessionRepo.Delete(c.Request.Context(), sessionID)
	if err != nil {
		log.Errorf("删除会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除会话失败", "data": nil})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"session_id": sessionID}})
}
