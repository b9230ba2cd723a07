package dto

// QueryRequest 问答请求，session_id 与 doc_id 至少提供一个
type QueryRequest struct {
	SessionID    string `json:"session_id" binding:"required_without=DocID"`
	DocID        string `json:"doc_id" binding:"required_without=SessionID"`
	Question     string `json:"question" binding:"required,max=4096"`
	TopK         int    `json:"top_k" binding:"omitempty,min=1,max=50"`
	IncludeDebug bool   `json:"include_debug"`
}

// RetrievedChunk 调试信息中的召回分块
type RetrievedChunk struct {
	SeqIndex  int     `json:"seq_index"`
	Score     float64 `json:"score"`
	CharStart int     `json:"char_start"`
	CharEnd   int     `json:"char_end"`
	Snippet   string  `json:"snippet"`
}

// QueryDebug 问答调试信息
type QueryDebug struct {
	RetrievedCount   int              `json:"retrieved_count"`
	RetrievalTimeMs  int64            `json:"retrieval_time_ms"`
	ModelTimeMs      int64            `json:"model_time_ms"`
	CorpusChunkCount int              `json:"corpus_chunk_count"`
	CorpusSamples    []string         `json:"corpus_samples,omitempty"`
	Chunks           []RetrievedChunk `json:"chunks,omitempty"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	SessionID string      `json:"session_id,omitempty"`
	DocID     string      `json:"doc_id"`
	Answer    string      `json:"answer"`
	Source    string      `json:"source"`
	Model     string      `json:"model,omitempty"`
	Debug     *QueryDebug `json:"debug,omitempty"`
}
