package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"doc-qa-api/internal/domain/entity"
	"doc-qa-api/internal/domain/repository"
)

const (
	defaultChunkSizeRunes    = 1000
	defaultChunkOverlapRunes = 200
)

// Indexer 负责把文档全文构建为可检索索引：
// 切分 → 向量化 → 写入向量库，并在关系库保留分块原文供兜底检索。
type Indexer struct {
	embedder *BatchEmbedder
	vector   VectorRepository
	docs     repository.DocumentRepository

	chunkSizeRunes    int
	chunkOverlapRunes int
	dimension         int
}

func NewIndexer(embedder *BatchEmbedder, vectorRepo VectorRepository, docRepo repository.DocumentRepository, chunkSize, chunkOverlap, dimension int) *Indexer {
	cs := chunkSize
	if cs <= 0 {
		cs = defaultChunkSizeRunes
	}
	co := chunkOverlap
	if co < 0 {
		co = defaultChunkOverlapRunes
	}
	return &Indexer{
		embedder:          embedder,
		vector:            vectorRepo,
		docs:              docRepo,
		chunkSizeRunes:    cs,
		chunkOverlapRunes: co,
		dimension:         dimension,
	}
}

// BuildDocument 为文档构建索引。失败时文档被置为 failed 并返回原因；
// 向量写入失败会先清理本文档的残留分片再返回，避免半成品索引。
func (i *Indexer) BuildDocument(ctx context.Context, doc *entity.Document, text string) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("document is required")
	}

	if err := i.build(ctx, doc, text); err != nil {
		doc.MarkFailed(err.Error())
		if uerr := i.docs.Update(ctx, doc); uerr != nil {
			return fmt.Errorf("%w: %v (mark failed: %v)", ErrPersistence, err, uerr)
		}
		return err
	}
	return nil
}

func (i *Indexer) build(ctx context.Context, doc *entity.Document, text string) error {
	chunks, err := SplitRunes(text, i.chunkSizeRunes, i.chunkOverlapRunes)
	if err != nil {
		return err
	}

	if err := i.vector.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	// 重建前清掉旧分片，保证内容变化后索引与全文一致
	if err := i.vector.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if len(chunks) == 0 {
		if err := i.docs.ReplaceChunks(ctx, doc.ID, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		doc.MarkReady(i.embedder.Model(), i.dimension, 0)
		if err := i.docs.Update(ctx, doc); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vectors, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if i.dimension > 0 && len(v) != i.dimension {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, i.dimension, len(v))
		}
	}

	vcs := make([]*VectorChunk, 0, len(chunks))
	rows := make([]*entity.DocumentChunk, 0, len(chunks))
	for idx, c := range chunks {
		vcs = append(vcs, &VectorChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			SeqIndex:   c.SeqIndex,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Text:       c.Text,
			Vector:     vectors[idx],
		})
		rows = append(rows, &entity.DocumentChunk{
			DocumentID: doc.ID,
			SeqIndex:   c.SeqIndex,
			Text:       c.Text,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
		})
	}

	if err := i.vector.InsertChunks(ctx, doc.ID, vcs); err != nil {
		// 回滚本文档分片，失败也只能尽力而为
		_ = i.vector.DeleteByDocument(ctx, doc.ID)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := i.docs.ReplaceChunks(ctx, doc.ID, rows); err != nil {
		_ = i.vector.DeleteByDocument(ctx, doc.ID)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	doc.MarkReady(i.embedder.Model(), i.dimension, len(chunks))
	if err := i.docs.Update(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// RemoveDocument 清理文档在向量库与关系库中的索引数据。
func (i *Indexer) RemoveDocument(ctx context.Context, documentID string) error {
	if err := i.vector.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := i.docs.ReplaceChunks(ctx, documentID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
