package milvus

import (
	"context"

	"doc-qa-api/internal/application/retrieval"
)

// RetrievalVectorRepository 实现应用层的向量仓储 port。
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrPersistence
	}
	return r.repo.EnsureCollection(ctx)
}

func (r *RetrievalVectorRepository) InsertChunks(ctx context.Context, documentID string, chunks []*retrieval.VectorChunk) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrPersistence
	}
	if len(chunks) == 0 {
		return nil
	}

	out := make([]*DocumentChunk, 0, len(chunks))
	for i := range chunks {
		c := chunks[i]
		if c == nil {
			continue
		}
		out = append(out, &DocumentChunk{
			ID:          c.ID,
			Vector:      c.Vector,
			DocumentID:  c.DocumentID,
			SeqIndex:    int64(c.SeqIndex),
			CharStart:   int64(c.CharStart),
			CharEnd:     int64(c.CharEnd),
			TextContent: c.Text,
		})
	}
	return r.repo.InsertChunks(ctx, documentID, out)
}

func (r *RetrievalVectorRepository) SearchChunks(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrPersistence
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchChunks(ctx, &SearchParams{
		DocumentID:  params.DocumentID,
		QueryVector: params.QueryVector,
		TopK:        params.TopK,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*retrieval.VectorSearchResult, 0, len(out))
	for i := range out {
		v := out[i]
		if v == nil {
			continue
		}
		results = append(results, &retrieval.VectorSearchResult{
			ID:        v.ID,
			Score:     v.Score,
			SeqIndex:  int(v.SeqIndex),
			CharStart: int(v.CharStart),
			CharEnd:   int(v.CharEnd),
			Text:      v.TextContent,
		})
	}
	return results, nil
}

func (r *RetrievalVectorRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrPersistence
	}
	return r.repo.DeleteByDocument(ctx, documentID)
}
