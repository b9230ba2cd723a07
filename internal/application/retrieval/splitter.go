package retrieval

// SplitRunes 按 rune 滑动窗口切分文本。
// 不修剪分块内容，保证各分块按区间可还原原文；最后一个不足窗口的
// 片段保留。DocumentID 由调用方回填。
func SplitRunes(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidConfiguration
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	out := make([]Chunk, 0, (len(runes)/step)+1)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Chunk{
			SeqIndex:  len(out),
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end >= len(runes) {
			break
		}
	}
	return out, nil
}
