package retrieval

import (
	"fmt"
	"strings"
)

// BuildPromptContext 将召回结果格式化为可直接注入 Prompt 的块。
// 约束：尽量短，避免把 score 等调试信息塞进 Prompt。
func BuildPromptContext(chunks []ScoredChunk, maxChunks int, maxRunesPerChunk int) string {
	if len(chunks) == 0 {
		return ""
	}
	if maxChunks <= 0 {
		maxChunks = 10
	}
	if maxRunesPerChunk <= 0 {
		maxRunesPerChunk = 400
	}

	n := len(chunks)
	if n > maxChunks {
		n = maxChunks
	}

	lines := make([]string, 0, n+1)
	lines = append(lines, "【召回上下文（可能为空）】")
	for i := 0; i < n; i++ {
		txt := compactOneLine(chunks[i].Text)
		txt = truncateRunes(txt, maxRunesPerChunk)
		if strings.TrimSpace(txt) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] (Chunk:%d) %s", i+1, chunks[i].SeqIndex, txt))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
