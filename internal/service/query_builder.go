package service

import (
	"strings"

	"niloufer-chat-go/internal/model"
)

// BuildContextualQuery 把用户原始问句改写成适合检索的查询。
// 纯函数，无副作用：
//   - 裸问候词原样返回，避免会话开头把陈旧上下文掺进向量；
//   - 出现招牌/热门触发词时，前置固定的招牌推广短语；
//   - 其余情况拼接最近至多 2 条用户历史消息（跳过问候词），不去重。
func BuildContextualQuery(raw string, recentUserTurns []string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := greetingTokens[normalized]; ok {
		return raw
	}

	if containsAny(normalized, signatureTriggerWords) {
		return signaturePromoPrefix + raw
	}

	parts := []string{raw}
	turns := recentUserTurns
	if len(turns) > 2 {
		turns = turns[len(turns)-2:]
	}
	for _, turn := range turns {
		content := strings.TrimSpace(turn)
		if content == "" {
			continue
		}
		if _, ok := greetingTokens[strings.ToLower(content)]; ok {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, " ")
}

// IsFollowUp 判断当前问句是否是对此前推荐的跟进。
// 历史为空时一定返回 false（没有可跟进的内容）。启发式偏保守：
// 误判为 false 只是多跑一次检索，误判为 true 会错过新结果。
func IsFollowUp(query string, history []model.ConversationTurn) bool {
	if len(history) == 0 {
		return false
	}
	queryLower := strings.ToLower(query)
	return containsAny(queryLower, contextualPronouns) || containsAny(queryLower, propertyNouns)
}

// HasSignatureIntent 判断原始问句（非改写后的查询）是否带有招牌/热门意图。
// 必须用原始问句判断，否则注入的上下文会造成误判。
func HasSignatureIntent(raw string) bool {
	return containsAny(strings.ToLower(raw), signatureTriggerWords)
}

// IsGreeting 判断整句是否只是一个问候词。
func IsGreeting(raw string) bool {
	_, ok := greetingTokens[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// lastUserTurnContents 取出历史中用户角色消息的内容，保持时间顺序。
func lastUserTurnContents(history []model.ConversationTurn) []string {
	var contents []string
	for _, turn := range history {
		if turn.Role == model.RoleUser {
			contents = append(contents, turn.Content)
		}
	}
	return contents
}
