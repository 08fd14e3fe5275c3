package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"niloufer-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userTurn(content string) model.ConversationTurn {
	return model.ConversationTurn{Role: model.RoleUser, Content: content, Timestamp: time.Now()}
}

func TestSessionGetOrCreate(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	sess, err := repo.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.SessionID)
	assert.Empty(t, sess.Turns)
	assert.Empty(t, sess.RecommendationEvents)
	assert.NotNil(t, sess.Preferences)

	again, err := repo.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.CreatedAt, again.CreatedAt)
}

func TestSessionGetMissing(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRetentionCap(t *testing.T) {
	repo := NewSessionRepository(5, nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, repo.AddTurn(ctx, "s1", userTurn(fmt.Sprintf("msg-%d", i))))
	}

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 5)
	// FIFO：最旧的 3 条被淘汰
	assert.Equal(t, "msg-3", sess.Turns[0].Content)
	assert.Equal(t, "msg-7", sess.Turns[4].Content)
}

func TestCommitAssistantTurnAtomicity(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.AddTurn(ctx, "s1", userTurn("recommend something")))
	require.NoError(t, repo.CommitAssistantTurn(ctx, "s1",
		model.ConversationTurn{Role: model.RoleAssistant, Content: "Try the Maska Bun!"},
		model.RecommendationEvent{FoodIDs: []string{"maska"}, Timestamp: time.Now()},
	))

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	require.Len(t, sess.RecommendationEvents, 1)
	assert.Equal(t, []string{"maska"}, sess.RecommendationEvents[0].FoodIDs)

	event, ok, err := repo.LastRecommendation(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"maska"}, event.FoodIDs)
}

func TestLastRecommendationEmptyEventAllowed(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	// 空推荐列表是合法事件："本轮没有推荐"，不同于"没有事件"
	require.NoError(t, repo.AddRecommendation(ctx, "s1",
		model.RecommendationEvent{FoodIDs: []string{}, Timestamp: time.Now()},
	))

	event, ok, err := repo.LastRecommendation(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, event.FoodIDs)

	_, ok, err = repo.LastRecommendation(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePreferencesMerges(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.UpdatePreferences(ctx, "s1", map[string]interface{}{"diet": "veg", "spice": "medium"}))
	require.NoError(t, repo.UpdatePreferences(ctx, "s1", map[string]interface{}{"spice": "high"}))

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "veg", sess.Preferences["diet"])
	assert.Equal(t, "high", sess.Preferences["spice"])
}

func TestDeleteSessionReportsExistence(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.AddTurn(ctx, "s1", userTurn("hi")))
	deleted, err := repo.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 重复删除不报错，但要报告会话已不存在
	deleted, err = repo.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSessionStats(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.AddTurn(ctx, "s1", userTurn("q1")))
	require.NoError(t, repo.CommitAssistantTurn(ctx, "s1",
		model.ConversationTurn{Role: model.RoleAssistant, Content: "a1"},
		model.RecommendationEvent{FoodIDs: []string{"tea", "maska"}, Timestamp: time.Now()},
	))
	require.NoError(t, repo.AddTurn(ctx, "s1", userTurn("q2")))
	require.NoError(t, repo.CommitAssistantTurn(ctx, "s1",
		model.ConversationTurn{Role: model.RoleAssistant, Content: "a2"},
		model.RecommendationEvent{FoodIDs: []string{"tea"}, Timestamp: time.Now()},
	))

	stats, err := repo.Stats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 2, stats.UserMessages)
	assert.Equal(t, 2, stats.AssistantMessages)
	assert.Equal(t, 3, stats.TotalRecommendations)
	assert.Equal(t, 2, stats.UniqueFoodItems)
}

func TestPurgeIdle(t *testing.T) {
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.AddTurn(ctx, "old", userTurn("hi")))
	require.NoError(t, repo.AddTurn(ctx, "fresh", userTurn("hi")))

	// 零 TTL：所有会话都算过期
	purged := repo.PurgeIdle(ctx, 0)
	assert.Equal(t, 2, purged)

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSessionConcurrentTurns(t *testing.T) {
	repo := NewSessionRepository(1000, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = repo.AddTurn(ctx, "shared", userTurn(fmt.Sprintf("w%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()

	sess, err := repo.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 200)
}

func TestSnapshotRoundTrip(t *testing.T) {
	// Clone 的深拷贝语义：修改副本不影响仓库内的状态
	repo := NewSessionRepository(50, nil)
	ctx := context.Background()

	require.NoError(t, repo.CommitAssistantTurn(ctx, "s1",
		model.ConversationTurn{Role: model.RoleAssistant, Content: "a"},
		model.RecommendationEvent{FoodIDs: []string{"tea"}, Timestamp: time.Now()},
	))

	sess, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	sess.RecommendationEvents[0].FoodIDs[0] = "tampered"
	sess.Turns[0].Content = "tampered"

	fresh, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tea", fresh.RecommendationEvents[0].FoodIDs[0])
	assert.Equal(t, "a", fresh.Turns[0].Content)
}
