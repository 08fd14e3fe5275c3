// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"niloufer-chat-go/internal/service"
	"niloufer-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// inboundMessage 是客户端发来的一条消息。
// 纯文本消息也被接受，等价于只带 message 字段。
type inboundMessage struct {
	Type        string                 `json:"type"`
	Message     string                 `json:"message"`
	SessionID   string                 `json:"session_id"`
	UserName    string                 `json:"user_name"`
	Preferences map[string]interface{} `json:"preferences"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 每条用户消息触发一轮对话：分块流式下发，结束后发送带推荐 ID 的最终帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	defer h.stopFlags.Delete(connKey(conn))

	log.Info("WebSocket 连接已建立")

	// 同一连接内会话延续：客户端不带 session_id 时沿用首轮分配的。
	var sessionID string

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		log.Infof("收到 WebSocket 消息: %s", string(raw))

		msg := inboundMessage{Message: string(raw)}
		if len(raw) > 0 && raw[0] == '{' {
			if err := json.Unmarshal(raw, &msg); err != nil {
				msg = inboundMessage{Message: string(raw)}
			}
		}

		// 停止指令：中断当前轮的流式下发
		if msg.Type == "stop" {
			h.stopFlags.Store(connKey(conn), true)
			resp := map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		if msg.Message == "" {
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		}
		// 清除上一轮的停止标志
		h.stopFlags.Delete(connKey(conn))

		result, err := h.chatService.StreamTurn(c.Request.Context(), service.ChatRequest{
			Message:     msg.Message,
			SessionID:   msg.SessionID,
			UserName:    msg.UserName,
			Preferences: msg.Preferences,
		}, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			resp := map[string]interface{}{
				"type":      "completion",
				"status":    "finished",
				"message":   "响应已完成",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			cb, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, cb)
			break
		}

		sessionID = result.SessionID

		final := map[string]interface{}{
			"type":                    "final",
			"message":                 result.Message,
			"session_id":              result.SessionID,
			"food_recommendation_ids": result.RecommendedIDs,
			"timestamp":               time.Now().UnixMilli(),
		}
		fb, _ := json.Marshal(final)
		_ = conn.WriteMessage(websocket.TextMessage, fb)
	}
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
