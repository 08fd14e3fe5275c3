package service

import (
	"sort"
	"strings"

	"niloufer-chat-go/internal/model"
)

// responseCleaner 把常见标点替换成等宽空格，保证清洗前后的下标对齐。
var responseCleaner = strings.NewReplacer("!", " ", "?", " ", ".", " ", ",", " ")

type mention struct {
	foodID string
	pos    int // 首次命中在回复文本中的下标
	order  int // 候选集-目录的扫描序，位置相同时兜底
}

// ExtractMentionedIDs 从 LLM 的自由文本回复中还原实际被推荐的菜品 ID。
// 纯函数：相同输入永远得到相同的有序 ID 列表，且不含重复。
//
// 第一遍按候选集逐项尝试四种匹配方法（单项命中即止）：
//  1. 全名大小写不敏感子串匹配；
//  2. 去掉尾部括号限定词（如规格/数量）后的名称子串匹配；
//  3. 多词命中：名称切分出的长度 >3 的词中至少 2 个出现在回复里；
//  4. 最长的独特词（>4 字符）出现在回复里。
//
// 第二遍扫描整个目录，兜住 LLM 推荐了历史对话里见过、但不在本轮候选集
// 中的菜品；这一遍只允许严格的方法 1/2，控制误报。
// 输出按回复中首次提及的位置排序，位置相同时按扫描序稳定排列。
func ExtractMentionedIDs(response string, candidates []model.CandidateMatch, catalog []model.FoodItem) []string {
	if response == "" {
		return []string{}
	}

	responseLower := strings.ToLower(response)
	responseClean := responseCleaner.Replace(responseLower)

	seen := make(map[string]struct{})
	var mentions []mention
	order := 0

	record := func(id string, pos int) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		mentions = append(mentions, mention{foodID: id, pos: pos, order: order})
		order++
	}

	for _, c := range candidates {
		if c.Item.ID == "" || c.Item.Name == "" {
			continue
		}
		if pos, ok := matchName(responseLower, responseClean, c.Item.Name, true); ok {
			record(c.Item.ID, pos)
		}
	}

	for _, item := range catalog {
		if item.ID == "" || item.Name == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		if pos, ok := matchName(responseLower, responseClean, item.Name, false); ok {
			record(item.ID, pos)
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		if mentions[i].pos != mentions[j].pos {
			return mentions[i].pos < mentions[j].pos
		}
		return mentions[i].order < mentions[j].order
	})

	ids := make([]string, 0, len(mentions))
	for _, m := range mentions {
		ids = append(ids, m.foodID)
	}
	return ids
}

// matchName 按优先级尝试各匹配方法，返回首次命中的下标。
// allowLoose 为 false 时只使用严格的全名/去括号名匹配。
func matchName(responseLower, responseClean, name string, allowLoose bool) (int, bool) {
	nameLower := strings.ToLower(name)

	// 方法 1：全名精确子串
	if pos := strings.Index(responseLower, nameLower); pos >= 0 {
		return pos, true
	}

	// 方法 2：去掉尾部括号限定词，如 "Jalapeno Cheese Poppers (6.Pcs)"
	cleanName := strings.TrimSpace(strings.SplitN(nameLower, "(", 2)[0])
	if cleanName != "" && cleanName != nameLower {
		if pos := strings.Index(responseLower, cleanName); pos >= 0 {
			return pos, true
		}
	}

	if !allowLoose {
		return 0, false
	}

	var nameWords []string
	for _, w := range strings.Fields(cleanName) {
		if len(w) > 3 {
			nameWords = append(nameWords, w)
		}
	}

	// 方法 3：多词命中（至少 2 个长词出现）
	if len(nameWords) >= 2 {
		found := 0
		first := -1
		for _, w := range nameWords {
			if pos := strings.Index(responseClean, w); pos >= 0 {
				found++
				if first < 0 || pos < first {
					first = pos
				}
			}
		}
		if found >= 2 {
			return first, true
		}
	}

	// 方法 4：最长独特词命中
	if len(nameWords) >= 1 {
		distinctive := nameWords[0]
		for _, w := range nameWords[1:] {
			if len(w) > len(distinctive) {
				distinctive = w
			}
		}
		if len(distinctive) > 4 {
			if pos := strings.Index(responseClean, distinctive); pos >= 0 {
				return pos, true
			}
		}
	}

	return 0, false
}
