package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-api/internal/domain/entity"
)

func newReadyDoc(repo *fakeDocRepo, chunkCount int) *entity.Document {
	doc := entity.NewDocument("handbook.pdf", "/tmp/handbook.pdf", "sha-1")
	doc.ID = uuid.NewString()
	doc.MarkReady("mxbai-embed-large", 8, chunkCount)
	_ = repo.Create(context.Background(), doc)
	return doc
}

func seedChunkRows(repo *fakeDocRepo, docID string, texts []string) {
	rows := make([]*entity.DocumentChunk, 0, len(texts))
	for i, s := range texts {
		rows = append(rows, &entity.DocumentChunk{DocumentID: docID, SeqIndex: i, Text: s})
	}
	repo.chunks[docID] = rows
}

func newTestEngine(docs *fakeDocRepo, vectors *fakeVectorRepo, cache EmbeddingCache) *Engine {
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	return NewEngine(be, vectors, docs, cache, 5, 3, 3)
}

func TestEngine_Retrieve_UnknownDocument(t *testing.T) {
	e := newTestEngine(newFakeDocRepo(), newFakeVectorRepo(), nil)
	_, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: uuid.NewString(), Query: "vacation"})
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestEngine_Retrieve_VectorHit(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 3)
	vectors.results = []*VectorSearchResult{
		{ID: "a", Score: 0.6, SeqIndex: 1, Text: "Parking is free."},
		{ID: "b", Score: 0.9, SeqIndex: 2, Text: "Vacation and policy details here."},
		{ID: "c", Score: 0.9, SeqIndex: 0, Text: "Vacation days accrue monthly."},
	}

	e := newTestEngine(docs, vectors, nil)
	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation policy"})
	require.NoError(t, err)

	assert.Equal(t, SourceVector, out.Source)
	require.Len(t, out.Chunks, 3)
	// 得分相同按分块序号升序
	assert.Equal(t, 0, out.Chunks[0].SeqIndex)
	assert.Equal(t, 2, out.Chunks[1].SeqIndex)
	assert.Equal(t, 1, out.Chunks[2].SeqIndex)
	assert.Equal(t, doc.ID, out.Chunks[0].DocumentID)
}

func TestEngine_Retrieve_KeywordFallbackOnEmptyVector(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 3)
	seedChunkRows(docs, doc.ID, []string{
		"Vacation days accrue monthly.",
		"Parking is free.",
		"Vacation and policy details here.",
	})

	e := newTestEngine(docs, vectors, nil)
	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "What is the vacation policy?"})
	require.NoError(t, err)

	assert.Equal(t, SourceKeyword, out.Source)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, 2, out.Chunks[0].SeqIndex)
	assert.Equal(t, float64(2), out.Chunks[0].Score)
	assert.Equal(t, 0, out.Chunks[1].SeqIndex)
	assert.Equal(t, float64(1), out.Chunks[1].Score)
}

func TestEngine_Retrieve_KeywordFallbackOnVectorStoreFailure(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	vectors.searchErr = errors.New("milvus down")
	doc := newReadyDoc(docs, 1)
	seedChunkRows(docs, doc.ID, []string{"Vacation days accrue monthly."})

	e := newTestEngine(docs, vectors, nil)

	// 向量库故障归类为持久化错误，而非向量化错误
	_, err := e.vectorSearch(context.Background(), doc, RetrieveInput{DocumentID: doc.ID, Query: "vacation", TopK: 5})
	assert.ErrorIs(t, err, ErrPersistence)

	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation"})
	require.NoError(t, err)
	assert.Equal(t, SourceKeyword, out.Source)
	require.Len(t, out.Chunks, 1)
}

func TestEngine_Retrieve_KeywordFallbackOnEmbeddingFailure(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 1)
	seedChunkRows(docs, doc.ID, []string{"Vacation days accrue monthly."})

	be := NewBatchEmbedder(&fakeEmbedder{dim: 8, failFirst: 10, failErr: errors.New("boom")}, testOpts())
	e := NewEngine(be, vectors, docs, nil, 5, 3, 3)

	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation"})
	require.NoError(t, err)
	assert.Equal(t, SourceKeyword, out.Source)
	require.Len(t, out.Chunks, 1)
}

func TestEngine_Retrieve_SourceNone(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 1)
	seedChunkRows(docs, doc.ID, []string{"Parking is free."})

	e := newTestEngine(docs, vectors, nil)
	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "submarine"})
	require.NoError(t, err)

	assert.Equal(t, SourceNone, out.Source)
	assert.Empty(t, out.Chunks)
}

func TestEngine_Retrieve_StaleIndexModel(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 3)
	doc.EmbeddingModel = "some-other-model"

	e := newTestEngine(docs, vectors, nil)
	_, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation"})
	assert.ErrorIs(t, err, ErrStaleIndex)
}

func TestEngine_Retrieve_StaleIndexDimension(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 3)
	doc.EmbeddingDim = 16

	e := newTestEngine(docs, vectors, nil)
	_, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation"})
	assert.ErrorIs(t, err, ErrStaleIndex)
}

func TestEngine_Retrieve_IngestingDocumentFallsBack(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := entity.NewDocument("handbook.pdf", "", "sha-1")
	doc.ID = uuid.NewString()
	_ = docs.Create(context.Background(), doc)

	e := newTestEngine(docs, vectors, nil)
	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation"})
	require.NoError(t, err)
	assert.Equal(t, SourceNone, out.Source)
}

func TestEngine_Retrieve_DebugInfo(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 2)
	seedChunkRows(docs, doc.ID, []string{
		"Vacation days accrue monthly.",
		"Parking is free.",
	})

	e := newTestEngine(docs, vectors, nil)
	out, err := e.Retrieve(context.Background(), RetrieveInput{DocumentID: doc.ID, Query: "vacation", IncludeDebug: true})
	require.NoError(t, err)

	require.NotNil(t, out.Debug)
	assert.Equal(t, 1, out.Debug.RetrievedCount)
	assert.Equal(t, 2, out.Debug.CorpusChunkCount)
	require.Len(t, out.Debug.CorpusSamples, 2)
	assert.GreaterOrEqual(t, out.Debug.RetrievalTimeMs, int64(0))
}

func TestEngine_Retrieve_QueryEmbeddingCache(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	doc := newReadyDoc(docs, 1)
	vectors.results = []*VectorSearchResult{{ID: "a", Score: 0.9, SeqIndex: 0, Text: "Vacation days accrue monthly."}}
	cache := newFakeEmbeddingCache()

	e := newTestEngine(docs, vectors, cache)
	in := RetrieveInput{DocumentID: doc.ID, Query: "vacation"}

	_, err := e.Retrieve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	_, err = e.Retrieve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.sets)
}

func TestEngine_Retrieve_InputValidation(t *testing.T) {
	e := newTestEngine(newFakeDocRepo(), newFakeVectorRepo(), nil)

	_, err := e.Retrieve(context.Background(), RetrieveInput{Query: "vacation"})
	assert.Error(t, err)

	_, err = e.Retrieve(context.Background(), RetrieveInput{DocumentID: uuid.NewString(), Query: "   "})
	assert.Error(t, err)
}
