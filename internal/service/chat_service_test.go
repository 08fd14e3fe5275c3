package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/pkg/llm"
	"niloufer-chat-go/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 把固定回复按词写给 writer，并记录收到的消息序列。
type fakeLLM struct {
	response string
	err      error
	gotMsgs  []llm.Message
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	f.gotMsgs = messages
	if f.err != nil {
		return f.err
	}
	for _, word := range strings.SplitAfter(f.response, " ") {
		if err := writer.WriteMessage(1, []byte(word)); err != nil {
			return err
		}
	}
	return nil
}

// captureWriter 记录下发给客户端的每一帧。
type captureWriter struct {
	frames []string
}

func (w *captureWriter) WriteMessage(messageType int, data []byte) error {
	w.frames = append(w.frames, string(data))
	return nil
}

func newChatFixture(t *testing.T, llmClient llm.Client) (ChatService, repository.SessionRepository) {
	t.Helper()
	config.Conf.Chat.TopK = 5
	config.Conf.Chat.HistoryLimit = 6

	repo := &fakeCatalogRepo{items: testCatalog()}
	foodSvc := NewFoodService(repo, nil, nil, "No matching dishes found.")
	sessionRepo := repository.NewSessionRepository(50, nil)
	svc := NewChatService(foodSvc, sessionRepo, nil, llmClient, ratelimit.NoopLimiter{})
	return svc, sessionRepo
}

func TestStreamTurnHappyPath(t *testing.T) {
	llmClient := &fakeLLM{response: "You should try the Maska Bun and the Khara Bun!"}
	svc, sessionRepo := newChatFixture(t, llmClient)
	ws := &captureWriter{}

	result, err := svc.StreamTurn(context.Background(), ChatRequest{
		Message:   "recommend a bun",
		SessionID: "s1",
	}, ws, nil)
	require.NoError(t, err)

	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, "You should try the Maska Bun and the Khara Bun!", result.Message)
	assert.Equal(t, []string{"maska", "khara"}, result.RecommendedIDs)

	// 会话里有用户消息、助手消息和一条推荐事件
	sess, err := sessionRepo.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, model.RoleUser, sess.Turns[0].Role)
	assert.Equal(t, model.RoleAssistant, sess.Turns[1].Role)
	require.Len(t, sess.RecommendationEvents, 1)
	assert.Equal(t, []string{"maska", "khara"}, sess.RecommendationEvents[0].FoodIDs)

	// 客户端收到分块帧和完成通知
	require.NotEmpty(t, ws.frames)
	assert.Contains(t, ws.frames[0], `"chunk"`)
	assert.Contains(t, ws.frames[len(ws.frames)-1], `"completion"`)
}

func TestStreamTurnGeneratesSessionID(t *testing.T) {
	svc, _ := newChatFixture(t, &fakeLLM{response: "Hello!"})
	ws := &captureWriter{}

	result, err := svc.StreamTurn(context.Background(), ChatRequest{Message: "hi"}, ws, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
}

func TestStreamTurnLLMFailureCommitsNothing(t *testing.T) {
	llmClient := &fakeLLM{err: errors.New("llm unavailable")}
	svc, sessionRepo := newChatFixture(t, llmClient)
	ws := &captureWriter{}

	_, err := svc.StreamTurn(context.Background(), ChatRequest{
		Message:   "recommend a bun",
		SessionID: "s1",
	}, ws, nil)
	require.Error(t, err)

	// 只留下用户消息：助手消息和推荐事件都没有提交
	sess, err := sessionRepo.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, model.RoleUser, sess.Turns[0].Role)
	assert.Empty(t, sess.RecommendationEvents)
}

func TestStreamTurnFollowUpReusesLastRecommendation(t *testing.T) {
	llmClient := &fakeLLM{response: "The Niloufer Special Tea has 120 calories."}
	svc, sessionRepo := newChatFixture(t, llmClient)
	ctx := context.Background()

	// 预置一轮历史：上一轮推荐了招牌茶
	require.NoError(t, sessionRepo.AddTurn(ctx, "s1", model.ConversationTurn{Role: model.RoleUser, Content: "recommend a drink", Timestamp: time.Now()}))
	require.NoError(t, sessionRepo.CommitAssistantTurn(ctx, "s1",
		model.ConversationTurn{Role: model.RoleAssistant, Content: "Try the Niloufer Special Tea!"},
		model.RecommendationEvent{FoodIDs: []string{"tea"}, Timestamp: time.Now()},
	))

	ws := &captureWriter{}
	result, err := svc.StreamTurn(ctx, ChatRequest{
		Message:   "how many calories in it?",
		SessionID: "s1",
	}, ws, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tea"}, result.RecommendedIDs)

	// 菜单上下文只包含上一轮推荐的菜品，而不是新检索的结果
	require.NotEmpty(t, llmClient.gotMsgs)
	systemMsg := llmClient.gotMsgs[0].Content
	assert.Contains(t, systemMsg, "[Niloufer Special Tea = tea]")
	assert.NotContains(t, systemMsg, "[Maska Bun = maska]")
}

func TestStreamTurnPreferencesInSystemMessage(t *testing.T) {
	llmClient := &fakeLLM{response: "Noted!"}
	svc, sessionRepo := newChatFixture(t, llmClient)
	ws := &captureWriter{}

	_, err := svc.StreamTurn(context.Background(), ChatRequest{
		Message:     "recommend a bun",
		SessionID:   "s1",
		UserName:    "Asha",
		Preferences: map[string]interface{}{"diet": "vegetarian"},
	}, ws, nil)
	require.NoError(t, err)

	systemMsg := llmClient.gotMsgs[0].Content
	assert.Contains(t, systemMsg, "Asha")
	assert.Contains(t, systemMsg, `"diet":"vegetarian"`)

	sess, err := sessionRepo.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "vegetarian", sess.Preferences["diet"])
}

func TestStreamTurnHistoryTruncation(t *testing.T) {
	llmClient := &fakeLLM{response: "Sure!"}
	svc, sessionRepo := newChatFixture(t, llmClient)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, sessionRepo.AddTurn(ctx, "s1", model.ConversationTurn{Role: model.RoleUser, Content: "older message", Timestamp: time.Now()}))
	}

	ws := &captureWriter{}
	_, err := svc.StreamTurn(ctx, ChatRequest{Message: "recommend a bun", SessionID: "s1"}, ws, nil)
	require.NoError(t, err)

	// system + 最多 HistoryLimit 条历史 + 本轮问句
	assert.Len(t, llmClient.gotMsgs, 1+config.Conf.Chat.HistoryLimit+1)
}
