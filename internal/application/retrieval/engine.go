package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"doc-qa-api/internal/domain/entity"
	"doc-qa-api/internal/domain/repository"
)

const (
	defaultTopK         = 5
	maxTopK             = 50
	defaultFallbackTopN = 3
	corpusSampleCount   = 2
	corpusSampleRunes   = 300
)

// EmbeddingCache 查询向量缓存（port），miss 返回 (nil, nil)。
type EmbeddingCache interface {
	GetQueryEmbedding(ctx context.Context, model, text string) ([]float32, error)
	SetQueryEmbedding(ctx context.Context, model, text string, vector []float32) error
}

// RetrieveInput 单文档检索输入。
type RetrieveInput struct {
	DocumentID   string
	Query        string
	TopK         int
	IncludeDebug bool
}

// Engine 统一检索入口：优先向量召回，向量不可用或空结果时
// 退化为关键词兜底，两者皆空返回 Source=none。
type Engine struct {
	embedder *BatchEmbedder
	vector   VectorRepository
	docs     repository.DocumentRepository
	cache    EmbeddingCache

	topK          int
	fallbackTopN  int
	minTokenRunes int
}

func NewEngine(embedder *BatchEmbedder, vectorRepo VectorRepository, docRepo repository.DocumentRepository, cache EmbeddingCache, topK, fallbackTopN, minTokenRunes int) *Engine {
	k := topK
	if k <= 0 {
		k = defaultTopK
	}
	n := fallbackTopN
	if n <= 0 {
		n = defaultFallbackTopN
	}
	return &Engine{
		embedder:      embedder,
		vector:        vectorRepo,
		docs:          docRepo,
		cache:         cache,
		topK:          k,
		fallbackTopN:  n,
		minTokenRunes: minTokenRunes,
	}
}

// Retrieve 在指定文档内检索与查询最相关的分块。
func (e *Engine) Retrieve(ctx context.Context, in RetrieveInput) (*Result, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.DocumentID = strings.TrimSpace(in.DocumentID)
	if in.DocumentID == "" {
		return nil, fmt.Errorf("document_id is required")
	}
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if in.TopK <= 0 {
		in.TopK = e.topK
	}
	if in.TopK > maxTopK {
		in.TopK = maxTopK
	}

	doc, err := e.docs.GetByID(ctx, in.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if doc == nil {
		return nil, ErrUnknownDocument
	}

	start := time.Now()
	out := &Result{Source: SourceNone}
	var dbg *DebugInfo
	if in.IncludeDebug {
		dbg = &DebugInfo{}
	}

	scored, vecErr := e.vectorSearch(ctx, doc, in)
	if vecErr != nil {
		// 超时与索引失效直接失败；向量化不可用才走兜底
		if errors.Is(vecErr, ErrTimeout) || errors.Is(vecErr, ErrStaleIndex) {
			return nil, vecErr
		}
	}
	if len(scored) > 0 {
		out.Chunks = scored
		out.Source = SourceVector
	} else {
		// 兜底与 debug 都需要分块原文
		rows, err := e.docs.ListChunks(ctx, in.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		chunks := make([]Chunk, 0, len(rows))
		for _, r := range rows {
			chunks = append(chunks, Chunk{
				DocumentID: r.DocumentID,
				SeqIndex:   r.SeqIndex,
				Text:       r.Text,
				CharStart:  r.CharStart,
				CharEnd:    r.CharEnd,
			})
		}
		if matched := KeywordSearch(in.Query, chunks, e.fallbackTopN, e.minTokenRunes); len(matched) > 0 {
			out.Chunks = matched
			out.Source = SourceKeyword
		}
		if dbg != nil {
			dbg.CorpusChunkCount = len(chunks)
			for i := 0; i < len(chunks) && i < corpusSampleCount; i++ {
				dbg.CorpusSamples = append(dbg.CorpusSamples, truncateRunes(chunks[i].Text, corpusSampleRunes))
			}
		}
	}

	if dbg != nil {
		if dbg.CorpusChunkCount == 0 {
			dbg.CorpusChunkCount = doc.ChunkCount
		}
		dbg.RetrievedCount = len(out.Chunks)
		dbg.RetrievalTimeMs = time.Since(start).Milliseconds()
		out.Debug = dbg
	}
	return out, nil
}

func (e *Engine) vectorSearch(ctx context.Context, doc *entity.Document, in RetrieveInput) ([]ScoredChunk, error) {
	if e.embedder == nil || e.vector == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if !doc.IsReady() || doc.ChunkCount == 0 {
		return nil, nil
	}
	// 索引由其他模型构建时拒绝检索，避免跨模型比较向量
	if doc.EmbeddingModel != "" && doc.EmbeddingModel != e.embedder.Model() {
		return nil, fmt.Errorf("%w: indexed with %s, current model %s", ErrStaleIndex, doc.EmbeddingModel, e.embedder.Model())
	}

	vec, err := e.embedQuery(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	if doc.EmbeddingDim > 0 && len(vec) != doc.EmbeddingDim {
		return nil, fmt.Errorf("%w: index dim %d, query dim %d", ErrStaleIndex, doc.EmbeddingDim, len(vec))
	}

	results, err := e.vector.SearchChunks(ctx, &VectorSearchParams{
		DocumentID:  doc.ID,
		QueryVector: vec,
		TopK:        in.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk: Chunk{
				DocumentID: doc.ID,
				SeqIndex:   r.SeqIndex,
				Text:       r.Text,
				CharStart:  r.CharStart,
				CharEnd:    r.CharEnd,
			},
			Score: float64(r.Score),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].SeqIndex < scored[j].SeqIndex
	})
	if len(scored) > in.TopK {
		scored = scored[:in.TopK]
	}
	return scored, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.cache != nil {
		if vec, err := e.cache.GetQueryEmbedding(ctx, e.embedder.Model(), query); err == nil && len(vec) > 0 {
			return vec, nil
		}
	}
	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		_ = e.cache.SetQueryEmbedding(ctx, e.embedder.Model(), query, vec)
	}
	return vec, nil
}
