package retrieval

import "context"

// VectorRepository 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorRepository interface {
	EnsureCollection(ctx context.Context) error
	InsertChunks(ctx context.Context, documentID string, chunks []*VectorChunk) error
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

type VectorChunk struct {
	ID         string
	DocumentID string
	SeqIndex   int
	CharStart  int
	CharEnd    int
	Text       string
	Vector     []float32
}

type VectorSearchParams struct {
	DocumentID  string
	QueryVector []float32
	TopK        int
}

type VectorSearchResult struct {
	ID        string
	Score     float32
	SeqIndex  int
	CharStart int
	CharEnd   int
	Text      string
}
