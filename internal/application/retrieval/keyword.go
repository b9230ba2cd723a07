package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

const defaultMinKeywordRunes = 3

// KeywordSearch 无向量召回时的词汇兜底：统计查询中不同关键词
// 在分块文本中的子串命中数作为得分。minTokenRunes 非正时取默认值。
// 排序规则：得分降序，得分相同按分块序号升序。
func KeywordSearch(query string, chunks []Chunk, topN, minTokenRunes int) []ScoredChunk {
	if topN <= 0 || len(chunks) == 0 {
		return nil
	}
	if minTokenRunes <= 0 {
		minTokenRunes = defaultMinKeywordRunes
	}

	words := keywordTokens(query, minTokenRunes)
	if len(words) == 0 {
		return nil
	}

	matched := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		lower := strings.ToLower(c.Text)
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > 0 {
			matched = append(matched, ScoredChunk{Chunk: c, Score: float64(score)})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].SeqIndex < matched[j].SeqIndex
	})
	if len(matched) > topN {
		matched = matched[:topN]
	}
	return matched
}

// keywordTokens 提取查询中去重后的小写关键词：剥离词首尾的标点，
// 过滤短于 minRunes 的词。
func keywordTokens(query string, minRunes int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 8)
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(f)) < minRunes {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
