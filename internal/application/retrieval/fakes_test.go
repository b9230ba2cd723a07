package retrieval

import (
	"context"
	"errors"

	"doc-qa-api/internal/domain/entity"
)

// fakeDocRepo 内存版文档仓储。
type fakeDocRepo struct {
	docs   map[string]*entity.Document
	chunks map[string][]*entity.DocumentChunk

	updateErr  error
	replaceErr error
	listErr    error
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:   make(map[string]*entity.Document),
		chunks: make(map[string][]*entity.DocumentChunk),
	}
}

func (f *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDocRepo) GetByContentSHA(_ context.Context, sha string) (*entity.Document, error) {
	for _, d := range f.docs {
		if d.ContentSHA == sha {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDocRepo) Update(_ context.Context, doc *entity.Document) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) Delete(_ context.Context, id string) error {
	delete(f.docs, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeDocRepo) List(_ context.Context, _ int) ([]*entity.Document, error) {
	out := make([]*entity.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocRepo) ReplaceChunks(_ context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.chunks[documentID] = chunks
	return nil
}

func (f *fakeDocRepo) ListChunks(_ context.Context, documentID string) ([]*entity.DocumentChunk, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chunks[documentID], nil
}

// fakeVectorRepo 内存版向量仓储。
type fakeVectorRepo struct {
	stored map[string][]*VectorChunk

	results   []*VectorSearchResult
	insertErr error
	searchErr error
	deletes   int
}

func newFakeVectorRepo() *fakeVectorRepo {
	return &fakeVectorRepo{stored: make(map[string][]*VectorChunk)}
}

func (f *fakeVectorRepo) EnsureCollection(_ context.Context) error { return nil }

func (f *fakeVectorRepo) InsertChunks(_ context.Context, documentID string, chunks []*VectorChunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.stored[documentID] = append(f.stored[documentID], chunks...)
	return nil
}

func (f *fakeVectorRepo) SearchChunks(_ context.Context, _ *VectorSearchParams) ([]*VectorSearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorRepo) DeleteByDocument(_ context.Context, documentID string) error {
	f.deletes++
	delete(f.stored, documentID)
	return nil
}

// fakeEmbeddingCache 记录读写的查询向量缓存。
type fakeEmbeddingCache struct {
	data map[string][]float32
	sets int
	hits int
}

func newFakeEmbeddingCache() *fakeEmbeddingCache {
	return &fakeEmbeddingCache{data: make(map[string][]float32)}
}

func (f *fakeEmbeddingCache) GetQueryEmbedding(_ context.Context, model, text string) ([]float32, error) {
	if v, ok := f.data[model+"|"+text]; ok {
		f.hits++
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (f *fakeEmbeddingCache) SetQueryEmbedding(_ context.Context, model, text string, vector []float32) error {
	f.sets++
	f.data[model+"|"+text] = vector
	return nil
}
