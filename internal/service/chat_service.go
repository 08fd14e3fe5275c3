package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/llm"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/ratelimit"

	"github.com/gorilla/websocket"
)

// defaultPromptRules 是未配置时的系统提示规则。
const defaultPromptRules = "You are a warm and helpful assistant for Niloufer Cafe. " +
	"Recommend dishes only from the menu section below and answer questions about them. " +
	"When the customer asks about signature or popular items, always mention the Niloufer special items first. " +
	"Refer to dishes by their exact menu names. If nothing on the menu fits, say so politely instead of inventing dishes."

// ChatRequest 是一轮对话的输入。
type ChatRequest struct {
	Message     string                 `json:"message"`
	SessionID   string                 `json:"session_id"`
	UserName    string                 `json:"user_name"`
	Preferences map[string]interface{} `json:"preferences"`
}

// ChatResult 是一轮对话的最终产物。
type ChatResult struct {
	Message        string   `json:"message"`
	SessionID      string   `json:"session_id"`
	RecommendedIDs []string `json:"food_recommendation_ids"`
}

// ChatService 协调一轮完整对话：会话状态、检索、LLM 流式生成与推荐落地。
type ChatService interface {
	StreamTurn(ctx context.Context, req ChatRequest, ws llm.MessageWriter, shouldStop func() bool) (*ChatResult, error)
}

type chatService struct {
	foodService      FoodService
	sessionRepo      repository.SessionRepository
	conversationRepo repository.ConversationRepository
	llmClient        llm.Client
	limiter          ratelimit.Limiter
}

// NewChatService 创建对话编排服务。conversationRepo 可为 nil（不落库分析记录）。
func NewChatService(foodService FoodService, sessionRepo repository.SessionRepository, conversationRepo repository.ConversationRepository, llmClient llm.Client, limiter ratelimit.Limiter) ChatService {
	return &chatService{
		foodService:      foodService,
		sessionRepo:      sessionRepo,
		conversationRepo: conversationRepo,
		llmClient:        llmClient,
		limiter:          limiter,
	}
}

// StreamTurn 执行一轮对话并把 LLM 分块流式写入 ws。
// 助手消息与推荐事件只在生成成功后一并提交；生成中途失败或被取消时，
// 会话里只留下用户消息，不会出现"半轮"状态。
func (s *chatService) StreamTurn(ctx context.Context, req ChatRequest, ws llm.MessageWriter, shouldStop func() bool) (*ChatResult, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	sess, err := s.sessionRepo.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("获取会话失败: %w", err)
	}

	prefs := sess.Preferences
	if len(req.Preferences) > 0 {
		if err := s.sessionRepo.UpdatePreferences(ctx, sessionID, req.Preferences); err != nil {
			log.Warnf("[ChatService] 更新会话 %s 的偏好失败: %v", sessionID, err)
		}
		if prefs == nil {
			prefs = map[string]interface{}{}
		}
		for k, v := range req.Preferences {
			prefs[k] = v
		}
	}

	// 跟进判定和上下文改写都基于追加本轮消息之前的历史快照。
	historyBefore := sess.Turns

	if err := s.sessionRepo.AddTurn(ctx, sessionID, model.ConversationTurn{
		Role:    model.RoleUser,
		Content: req.Message,
	}); err != nil {
		return nil, fmt.Errorf("记录用户消息失败: %w", err)
	}

	candidates, err := s.selectCandidates(ctx, sessionID, req.Message, historyBefore)
	if err != nil {
		return nil, err
	}

	foodContext := s.foodService.BuildFoodContext(candidates)
	systemMsg := s.buildSystemMessage(foodContext, req.UserName, prefs)
	messages := s.composeMessages(systemMsg, historyBefore, req.Message)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("等待限流许可失败: %w", err)
	}

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if err := s.llmClient.StreamChatMessages(ctx, messages, s.buildGenerationParams(), interceptor); err != nil {
		return nil, err
	}

	sendCompletion(ws)

	fullAnswer := answerBuilder.String()
	var recommendedIDs []string
	if len(fullAnswer) > 0 {
		recommendedIDs = ExtractMentionedIDs(fullAnswer, candidates, s.foodService.Catalog())
		// 使用后台上下文：流式响应已经成功，即使请求被取消也要落地这一轮。
		commitCtx := context.Background()
		if err := s.sessionRepo.CommitAssistantTurn(commitCtx, sessionID,
			model.ConversationTurn{Role: model.RoleAssistant, Content: fullAnswer},
			model.RecommendationEvent{FoodIDs: recommendedIDs, Timestamp: time.Now()},
		); err != nil {
			log.Errorf("[ChatService] 提交助手回复失败: %v", err)
		}
		s.saveAnalytics(sessionID, req.Message, fullAnswer, recommendedIDs)
	}
	if recommendedIDs == nil {
		recommendedIDs = []string{}
	}

	return &ChatResult{
		Message:        fullAnswer,
		SessionID:      sessionID,
		RecommendedIDs: recommendedIDs,
	}, nil
}

// selectCandidates 决定本轮候选：跟进问题复用上一轮推荐，否则执行新检索。
func (s *chatService) selectCandidates(ctx context.Context, sessionID, message string, historyBefore []model.ConversationTurn) ([]model.CandidateMatch, error) {
	topK := config.Conf.Chat.TopK

	if IsFollowUp(message, historyBefore) {
		// 复用上一轮实际推荐过的菜品，保证指代有所指。
		if candidates := s.reuseLastRecommendation(ctx, sessionID); len(candidates) > 0 {
			log.Infof("[ChatService] 跟进问题, 复用上一轮的 %d 个推荐", len(candidates))
			return candidates, nil
		}
	}

	contextualQuery := BuildContextualQuery(message, lastUserTurnContents(historyBefore))
	candidates, err := s.foodService.Retrieve(ctx, message, contextualQuery, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("检索候选菜品失败: %w", err)
	}
	return candidates, nil
}

// maxReusedCandidates 限制跟进复用的候选数量，避免 prompt 膨胀。
const maxReusedCandidates = 5

// reuseLastRecommendation 把最近一次推荐事件还原成候选列表。
// 事件为空或菜品已下架时返回空，让调用方退回新检索。
func (s *chatService) reuseLastRecommendation(ctx context.Context, sessionID string) []model.CandidateMatch {
	event, ok, err := s.sessionRepo.LastRecommendation(ctx, sessionID)
	if err != nil || !ok || len(event.FoodIDs) == 0 {
		return nil
	}

	ids := event.FoodIDs
	if len(ids) > maxReusedCandidates {
		ids = ids[:maxReusedCandidates]
	}
	candidates := make([]model.CandidateMatch, 0, len(ids))
	for _, id := range ids {
		item, err := s.foodService.GetFoodByID(ctx, id)
		if err != nil || item == nil {
			continue
		}
		candidates = append(candidates, model.CandidateMatch{Item: *item, Score: 1.0})
	}
	return candidates
}

// buildSystemMessage 组装系统提示：行为规则、客人偏好、菜单上下文。
func (s *chatService) buildSystemMessage(foodContext, userName string, prefs map[string]interface{}) string {
	promptCfg := config.Conf.LLM.Prompt
	rules := promptCfg.Rules
	if rules == "" {
		rules = defaultPromptRules
	}
	menuStart := promptCfg.MenuStart
	if menuStart == "" {
		menuStart = "<<MENU>>"
	}
	menuEnd := promptCfg.MenuEnd
	if menuEnd == "" {
		menuEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	if userName != "" {
		fmt.Fprintf(&sys, "The customer's name is %s.\n", userName)
	}
	if len(prefs) > 0 {
		prefBytes, err := json.Marshal(prefs)
		if err == nil {
			fmt.Fprintf(&sys, "Known customer preferences: %s\n", string(prefBytes))
		}
	}
	sys.WriteString(menuStart)
	sys.WriteString("\n")
	sys.WriteString(foodContext)
	if !strings.HasSuffix(foodContext, "\n") {
		sys.WriteString("\n")
	}
	sys.WriteString(menuEnd)
	return sys.String()
}

// composeMessages 组装发给 LLM 的消息序列：system + 截断后的历史 + 本轮问句。
func (s *chatService) composeMessages(systemMsg string, historyBefore []model.ConversationTurn, userInput string) []llm.Message {
	historyLimit := config.Conf.Chat.HistoryLimit
	history := historyBefore
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, turn := range history {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userInput})
	return msgs
}

// saveAnalytics 把问答记录落库，失败只记日志。
func (s *chatService) saveAnalytics(sessionID, question, answer string, recommendedIDs []string) {
	if s.conversationRepo == nil {
		return
	}
	conv := &model.Conversation{
		SessionID:      sessionID,
		Question:       question,
		Answer:         answer,
		RecommendedIDs: strings.Join(recommendedIDs, ","),
	}
	if err := s.conversationRepo.Save(conv); err != nil {
		log.Errorf("[ChatService] 保存对话分析记录失败: %v", err)
	}
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

// wsWriterInterceptor 封装下游连接，在透传分块的同时捕获完整回答。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(ws llm.MessageWriter) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
