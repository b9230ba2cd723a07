package retrieval

// Source 标记召回结果的来源通道。
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	SourceNone    Source = "none"
)

// Chunk 文档分块，CharStart/CharEnd 为原文中的 rune 区间（左闭右开）。
type Chunk struct {
	DocumentID string
	SeqIndex   int
	Text       string
	CharStart  int
	CharEnd    int
}

// ScoredChunk 带评分的召回结果。
type ScoredChunk struct {
	Chunk
	Score float64
}

// DebugInfo 检索过程的可观测信息，随 Result 返回给调用方。
type DebugInfo struct {
	RetrievedCount   int
	RetrievalTimeMs  int64
	CorpusChunkCount int
	CorpusSamples    []string
}

// Result 一次检索的最终输出。
type Result struct {
	Chunks []ScoredChunk
	Source Source
	Debug  *DebugInfo
}
