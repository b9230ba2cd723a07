package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-qa-api/internal/domain/entity"
)

func newTestDoc(repo *fakeDocRepo) *entity.Document {
	doc := entity.NewDocument("handbook.pdf", "/tmp/handbook.pdf", "sha-1")
	doc.ID = uuid.NewString()
	_ = repo.Create(context.Background(), doc)
	return doc
}

func TestIndexer_BuildDocument_Success(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	text := strings.Repeat("x", 25)

	require.NoError(t, idx.BuildDocument(context.Background(), doc, text))

	assert.Equal(t, entity.DocumentStatusReady, doc.Status)
	assert.Equal(t, "mxbai-embed-large", doc.EmbeddingModel)
	assert.Equal(t, 8, doc.EmbeddingDim)
	// step = 8: [0,10) [8,18) [16,25)
	assert.Equal(t, 3, doc.ChunkCount)

	require.Len(t, vectors.stored[doc.ID], 3)
	require.Len(t, docs.chunks[doc.ID], 3)
	for i, row := range docs.chunks[doc.ID] {
		assert.Equal(t, i, row.SeqIndex)
		assert.Equal(t, doc.ID, row.DocumentID)
	}
}

func TestIndexer_BuildDocument_EmptyText(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	require.NoError(t, idx.BuildDocument(context.Background(), doc, ""))

	assert.Equal(t, entity.DocumentStatusReady, doc.Status)
	assert.Equal(t, 0, doc.ChunkCount)
	assert.Empty(t, vectors.stored[doc.ID])
}

func TestIndexer_BuildDocument_DimensionMismatch(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 4}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	err := idx.BuildDocument(context.Background(), doc, strings.Repeat("x", 25))

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, entity.DocumentStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.FailReason)
	assert.Empty(t, vectors.stored[doc.ID])
}

func TestIndexer_BuildDocument_InsertFailureRollsBack(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	vectors.insertErr = errors.New("milvus down")
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	err := idx.BuildDocument(context.Background(), doc, strings.Repeat("x", 25))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, entity.DocumentStatusFailed, doc.Status)
	// 预清理一次 + 失败回滚一次
	assert.Equal(t, 2, vectors.deletes)
}

func TestIndexer_BuildDocument_EmbeddingFailure(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8, failFirst: 10, failErr: errors.New("boom")}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	err := idx.BuildDocument(context.Background(), doc, strings.Repeat("x", 25))

	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, entity.DocumentStatusFailed, doc.Status)
}

func TestIndexer_BuildDocument_RebuildClearsOldChunks(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	require.NoError(t, idx.BuildDocument(context.Background(), doc, strings.Repeat("x", 25)))
	require.NoError(t, idx.BuildDocument(context.Background(), doc, strings.Repeat("y", 12)))

	assert.Equal(t, 2, doc.ChunkCount)
	assert.Len(t, vectors.stored[doc.ID], 2)
	assert.Len(t, docs.chunks[doc.ID], 2)
}

func TestIndexer_RemoveDocument(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)

	doc := newTestDoc(docs)
	require.NoError(t, idx.BuildDocument(context.Background(), doc, strings.Repeat("x", 25)))
	require.NoError(t, idx.RemoveDocument(context.Background(), doc.ID))

	assert.Empty(t, vectors.stored[doc.ID])
	assert.Empty(t, docs.chunks[doc.ID])
}

func TestIndexer_BuildDocument_InvalidConfig(t *testing.T) {
	docs := newFakeDocRepo()
	vectors := newFakeVectorRepo()
	be := NewBatchEmbedder(&fakeEmbedder{dim: 8}, testOpts())
	idx := NewIndexer(be, vectors, docs, 10, 2, 8)
	idx.chunkOverlapRunes = 10

	doc := newTestDoc(docs)
	err := idx.BuildDocument(context.Background(), doc, "hello world")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
