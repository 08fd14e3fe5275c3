package service

import (
	"testing"

	"niloufer-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestBuildContextualQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		history []string
		want    string
	}{
		{
			name: "裸问候词原样返回",
			raw:  "hello",
			want: "hello",
		},
		{
			name: "问候词忽略大小写和空白",
			raw:  "  Hi  ",
			want: "  Hi  ",
		},
		{
			name: "招牌触发词注入推广前缀",
			raw:  "what are your special items",
			want: "Niloufer special signature items what are your special items",
		},
		{
			name: "must-try 同样触发招牌前缀",
			raw:  "any must-try dishes?",
			want: "Niloufer special signature items any must-try dishes?",
		},
		{
			name:    "拼接最近两条用户历史",
			raw:     "anything cold?",
			history: []string{"something spicy", "do you have tea", "what about snacks"},
			want:    "anything cold? do you have tea what about snacks",
		},
		{
			name:    "历史中的问候词被跳过",
			raw:     "anything cold?",
			history: []string{"hello", "do you have tea"},
			want:    "anything cold? do you have tea",
		},
		{
			name: "无历史时返回原句",
			raw:  "anything cold?",
			want: "anything cold?",
		},
		{
			name:    "招牌意图优先于历史拼接",
			raw:     "show me popular dishes",
			history: []string{"do you have tea"},
			want:    "Niloufer special signature items show me popular dishes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildContextualQuery(tt.raw, tt.history)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsFollowUp(t *testing.T) {
	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "recommend something"},
		{Role: model.RoleAssistant, Content: "Try the Maska Bun!"},
	}

	tests := []struct {
		name    string
		query   string
		history []model.ConversationTurn
		want    bool
	}{
		{"历史为空时一定不是跟进", "how many calories in these?", nil, false},
		{"代词 these", "how many calories in these?", history, true},
		{"代词 it", "is it vegetarian?", history, true},
		{"属性名词 price", "price please", history, true},
		{"属性名词 how much", "how much for the bun", history, true},
		{"普通新查询", "show me sandwiches", history, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFollowUp(tt.query, tt.history))
		})
	}
}

func TestHasSignatureIntent(t *testing.T) {
	assert.True(t, HasSignatureIntent("what is FAMOUS here"))
	assert.True(t, HasSignatureIntent("any must try items"))
	assert.False(t, HasSignatureIntent("do you have tea"))
}

func TestLastUserTurnContents(t *testing.T) {
	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
	}
	assert.Equal(t, []string{"first", "second"}, lastUserTurnContents(history))
}
